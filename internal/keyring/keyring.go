package keyring

import (
	"errors"

	"github.com/zalando/go-keyring"
)

const serviceName = "stegvault"

// ErrNotFound is returned when no password is stored for a ledger
var ErrNotFound = keyring.ErrNotFound

// SavePassword stores the password used for images of one ledger
func SavePassword(ledgerID string, password string) error {
	return keyring.Set(serviceName, ledgerID, password)
}

// GetPassword retrieves a password from the OS keyring
func GetPassword(ledgerID string) (string, error) {
	return keyring.Get(serviceName, ledgerID)
}

// DeletePassword removes a password from the OS keyring. Deleting a
// missing entry is not an error.
func DeletePassword(ledgerID string) error {
	err := keyring.Delete(serviceName, ledgerID)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// HasPassword checks if a password is stored in the keyring
func HasPassword(ledgerID string) bool {
	_, err := keyring.Get(serviceName, ledgerID)
	return err == nil
}
