package document

import (
	"fmt"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/joseph-ayodele/labreports/internal/common"
)

func pdfConfig(password string) *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if password != "" {
		conf.UserPW = password
	}
	return conf
}

// isPasswordErr reports whether pdfcpu rejected the file for lack of the right password.
func isPasswordErr(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "password")
}

func validatePDF(path, password string) error {
	if err := api.ValidateFile(path, pdfConfig(password)); err != nil {
		if isPasswordErr(err) {
			return fmt.Errorf("%w: %v", common.ErrEncryptionCredential, err)
		}
		return fmt.Errorf("%w: %v", common.ErrInvalidDocument, err)
	}
	return nil
}

func pdfPageCount(path, password string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrInvalidDocument, err)
	}
	defer f.Close()

	n, err := api.PageCount(f, pdfConfig(password))
	if err != nil {
		if isPasswordErr(err) {
			return 0, fmt.Errorf("%w: %v", common.ErrEncryptionCredential, err)
		}
		return 0, fmt.Errorf("%w: %v", common.ErrInvalidDocument, err)
	}
	return n, nil
}

func decryptPDF(in, out, password string) error {
	if err := api.DecryptFile(in, out, pdfConfig(password)); err != nil {
		if isPasswordErr(err) {
			return fmt.Errorf("%w: %v", common.ErrEncryptionCredential, err)
		}
		return err
	}
	return nil
}
