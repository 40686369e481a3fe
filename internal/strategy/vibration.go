package strategy

// DefaultVibrationPattern is used for unknown pattern keys.
const DefaultVibrationPattern = "short"

// vibrationPatterns are waveform timings in milliseconds: index 0 is the
// initial wait, then vibrate/pause alternate.
var vibrationPatterns = map[string][]int64{
	"short":  {0, 200},
	"double": {0, 150, 100, 150},
	"heart":  {0, 100, 100, 100, 100, 300},
	"long":   {0, 500, 200, 500},
}

// VibrationPatternNames lists the valid keys in display order.
var VibrationPatternNames = []string{"short", "double", "heart", "long"}

// VibrationTimings returns a copy of the timings for key, falling back to the
// default pattern.
func VibrationTimings(key string) []int64 {
	timings, ok := vibrationPatterns[key]
	if !ok {
		timings = vibrationPatterns[DefaultVibrationPattern]
	}
	out := make([]int64, len(timings))
	copy(out, timings)
	return out
}
