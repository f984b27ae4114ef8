package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/arikurniawan9/toko-sakinah/internal/shared"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeAndValidate decodes a JSON body and runs validator struct tags on it.
// Failures are returned as *shared.ValidationError.
func DecodeAndValidate(r *http.Request, target any) error {
	if err := DecodeJSON(r, target); err != nil {
		return &shared.ValidationError{Field: "body", Message: fmt.Sprintf("payload tidak valid: %v", err)}
	}
	if err := validate.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &shared.ValidationError{Field: jsonFieldPath(fe.Namespace()), Message: fmt.Sprintf("gagal validasi %q", fe.Tag())}
		}
		return &shared.ValidationError{Field: "body", Message: err.Error()}
	}
	return nil
}

// jsonFieldPath turns "createSaleRequest.Items[0].ProductID" into "Items[0].ProductID".
func jsonFieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}
