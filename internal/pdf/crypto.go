package pdf

import (
	"fmt"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Credentials are the passwords for a protected label sheet.
type Credentials struct {
	UserPassword  string `json:"user_password,omitempty"`
	OwnerPassword string `json:"owner_password,omitempty"`
}

func (c *Credentials) empty() bool {
	return c == nil || (c.UserPassword == "" && c.OwnerPassword == "")
}

// isEncrypted reports whether pdfcpu refuses the file for lack of a password.
func isEncrypted(filename string) (bool, error) {
	if _, err := api.PageCountFile(filename); err != nil {
		if IsPasswordError(err) {
			return true, nil
		}
		return false, fmt.Errorf("failed to check PDF encryption status: %w", err)
	}
	return false, nil
}

// decrypt writes a decrypted copy of filename to a temporary file and returns
// its path together with a cleanup func. Unencrypted files are returned as is.
func decrypt(filename string, creds *Credentials) (string, func(), error) {
	noop := func() {}

	encrypted, err := isEncrypted(filename)
	if err != nil {
		return "", noop, err
	}
	if !encrypted {
		return filename, noop, nil
	}
	if creds.empty() {
		return "", noop, fmt.Errorf("%w: %s", ErrPasswordRequired, filename)
	}

	tmp, err := os.CreateTemp("", "decrypted-*.pdf")
	if err != nil {
		return "", noop, fmt.Errorf("failed to create temporary file: %w", err)
	}
	_ = tmp.Close()
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	conf := model.NewDefaultConfiguration()
	conf.UserPW = creds.UserPassword
	conf.OwnerPW = creds.OwnerPassword
	if err := api.DecryptFile(filename, tmp.Name(), conf); err != nil {
		cleanup()
		return "", noop, fmt.Errorf("failed to decrypt PDF: %w", err)
	}
	return tmp.Name(), cleanup, nil
}

// IsPasswordError checks if an error is related to password/encryption issues.
func IsPasswordError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, keyword := range []string{"password", "encrypted", "decrypt", "invalid credentials"} {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}
	return false
}
