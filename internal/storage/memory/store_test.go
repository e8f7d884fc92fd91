package memory

import (
	"testing"

	"github.com/julianstephens/studyplan/internal/storage"
	"github.com/julianstephens/studyplan/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Provider {
		return New()
	})
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := New()
	stored, err := s.AppendVersion(t.Context(), storagetest.SampleVersion("u1"), 0)
	if err != nil {
		t.Fatalf("AppendVersion failed: %v", err)
	}
	stored.Blocks[0].TaskID = "mutated"

	got, err := s.GetVersion(t.Context(), "u1", 1)
	if err != nil {
		t.Fatalf("GetVersion failed: %v", err)
	}
	if got.Blocks[0].TaskID == "mutated" {
		t.Error("caller mutation leaked into the ledger")
	}
}
