package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/soraiyu/KyuubiMask/internal/preferences"
)

// PreferencesStore syncs one profile's preferences through Firestore.
//
// Layout: profiles/{profileID} holds the switches, and
// profiles/{profileID}/masked_apps/{sha256(source)} holds one doc per app.
type PreferencesStore struct {
	client    *firestore.Client
	profileID string
}

func NewPreferencesStore(client *firestore.Client, profileID string) *PreferencesStore {
	return &PreferencesStore{client: client, profileID: profileID}
}

// profileRecord is the switches document. MaskedApps lives in the subcollection.
type profileRecord struct {
	preferences.Preferences
	UpdatedAt time.Time `firestore:"updated_at"`
}

type appRecord struct {
	Source  string    `firestore:"source"`
	AddedAt time.Time `firestore:"added_at"`
}

func (s *PreferencesStore) Load(ctx context.Context) (preferences.Preferences, error) {
	snap, err := s.profileRef().Get(ctx)
	if status.Code(err) == codes.NotFound {
		return preferences.Preferences{}, preferences.ErrNotFound
	}
	if err != nil {
		return preferences.Preferences{}, fmt.Errorf("failed to get profile %s: %w", s.profileID, err)
	}

	var record profileRecord
	if err := snap.DataTo(&record); err != nil {
		return preferences.Preferences{}, fmt.Errorf("failed to decode profile %s: %w", s.profileID, err)
	}
	prefs := record.Preferences

	apps, err := s.fetchApps(ctx)
	if err != nil {
		return preferences.Preferences{}, err
	}
	prefs.MaskedApps = apps
	prefs.Normalize()
	return prefs, nil
}

// Save replaces the switches and reconciles the app subcollection.
func (s *PreferencesStore) Save(ctx context.Context, prefs preferences.Preferences) error {
	record := profileRecord{Preferences: prefs, UpdatedAt: time.Now()}
	if _, err := s.profileRef().Set(ctx, record); err != nil {
		return fmt.Errorf("failed to save profile %s: %w", s.profileID, err)
	}

	existing, err := s.fetchApps(ctx)
	if err != nil {
		return err
	}
	want := make(map[string]struct{}, len(prefs.MaskedApps))
	for _, app := range prefs.MaskedApps {
		want[app] = struct{}{}
	}
	for _, app := range existing {
		if _, keep := want[app]; !keep {
			if err := s.RemoveMaskedApp(ctx, app); err != nil {
				return err
			}
		}
	}
	for _, app := range prefs.MaskedApps {
		if err := s.AddMaskedApp(ctx, app); err != nil {
			return err
		}
	}
	return nil
}

func (s *PreferencesStore) AddMaskedApp(ctx context.Context, source string) error {
	record := appRecord{Source: source, AddedAt: time.Now()}
	if _, err := s.appRef(source).Set(ctx, record); err != nil {
		return fmt.Errorf("failed to add masked app: %w", err)
	}
	return nil
}

func (s *PreferencesStore) RemoveMaskedApp(ctx context.Context, source string) error {
	if _, err := s.appRef(source).Delete(ctx); err != nil {
		return fmt.Errorf("failed to remove masked app: %w", err)
	}
	return nil
}

func (s *PreferencesStore) fetchApps(ctx context.Context) ([]string, error) {
	iter := s.appsCollection().OrderBy("added_at", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	apps := make([]string, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}

		var record appRecord
		if err := doc.DataTo(&record); err != nil || record.Source == "" {
			continue
		}
		apps = append(apps, record.Source)
	}
	return apps, nil
}

// profileRef: profiles/{profileID}
func (s *PreferencesStore) profileRef() *firestore.DocumentRef {
	return s.client.Collection("profiles").Doc(s.profileID)
}

func (s *PreferencesStore) appsCollection() *firestore.CollectionRef {
	return s.profileRef().Collection("masked_apps")
}

func (s *PreferencesStore) appRef(source string) *firestore.DocumentRef {
	return s.appsCollection().Doc(hashSource(source))
}

func hashSource(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
