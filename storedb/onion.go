package storedb

var onionServiceKey = []byte("onionService")

type onionService struct {
	PrivateKey []byte `json:"private_key"`
}

// OnionPrivateKey returns the stored onion service key, or nil if there is
// none yet.
func (db *DB) OnionPrivateKey() ([]byte, error) {
	service := &onionService{}

	found, err := db.getJSON(settingsBucket, onionServiceKey, service)
	if err != nil || !found {
		return nil, err
	}

	return service.PrivateKey, nil
}

func (db *DB) SetOnionPrivateKey(key []byte) error {
	return db.setJSON(settingsBucket, onionServiceKey, &onionService{PrivateKey: key})
}
