package storedb

import (
	"bytes"
	"testing"
)

func TestOnionPrivateKey(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}

	key, err := db.OnionPrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	if key != nil {
		t.Fatalf("expected no key in a fresh db, got %x", key)
	}

	want := bytes.Repeat([]byte{0xab}, 64)
	if err := db.SetOnionPrivateKey(want); err != nil {
		t.Fatal(err)
	}

	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	// the key survives a restart
	db, err = Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	key, err = db.OnionPrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(key, want) {
		t.Errorf("expected %x, got %x", want, key)
	}
}

func TestGetJSON_Corrupt(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := db.setJSON(settingsBucket, onionServiceKey, "not an object"); err != nil {
		t.Fatal(err)
	}

	if _, err := db.OnionPrivateKey(); err == nil {
		t.Error("expected corrupt value to fail")
	}
}
