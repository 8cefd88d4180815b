package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/cwrk-planet/roulette-service/internal/store"
	"github.com/cwrk-planet/roulette-service/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.RoomStore {
		db, err := Open(filepath.Join(t.TempDir(), "roulette.db"))
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		return New(db)
	})
}
