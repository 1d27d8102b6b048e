package onion

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestStart_MissingTor(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := Start(ctx, &Config{
		ExePath:     filepath.Join(t.TempDir(), "no-such-tor"),
		DataDirBase: t.TempDir(),
	})
	if err == nil {
		s.Close()
		t.Fatal("expected start to fail without a tor binary")
	}
}

func TestOnionURL(t *testing.T) {
	id := "vww6ybal4bd7szmgncyruucpgfkqahzddi37ktceo3ah7ngmcopnpyyd"

	if got := onionURL(id); got != "http://"+id+".onion" {
		t.Errorf("unexpected url %v", got)
	}
}
