package strategy

import "strings"

// Source identifiers of the apps with a dedicated strategy.
const (
	WhatsAppSource = "com.whatsapp"
	LineSource     = "jp.naver.line.android"
	SlackSource    = "com.slack"
	DiscordSource  = "com.discord"
)

// ForSource builds a strategy for one exact source identifier.
func ForSource(name, source string, opts ...Option) Strategy {
	return Strategy{
		Name:    name,
		Match:   func(s string) bool { return s == source },
		Rewrite: Base(opts...),
	}
}

// forSourceFold is ForSource with a case-insensitive match, for apps whose
// package id has shipped in more than one casing.
func forSourceFold(name, source string, opts ...Option) Strategy {
	return Strategy{
		Name:    name,
		Match:   func(s string) bool { return strings.EqualFold(s, source) },
		Rewrite: Base(opts...),
	}
}

func WhatsApp() Strategy { return ForSource("whatsapp", WhatsAppSource) }

func Line() Strategy { return ForSource("line", LineSource) }

// Slack has been published as both "com.Slack" and "com.slack".
func Slack() Strategy { return forSourceFold("slack", SlackSource) }

func Discord() Strategy { return forSourceFold("discord", DiscordSource) }

// Default matches every source. Register it last.
func Default() Strategy {
	return Strategy{
		Name:     "default",
		Match:    func(string) bool { return true },
		Rewrite:  Base(),
		CatchAll: true,
	}
}

// BuiltIn returns the app-specific strategies in registration order.
func BuiltIn() []Strategy {
	return []Strategy{WhatsApp(), Line(), Slack(), Discord()}
}
