package validators

import (
	"io"
	"net/http"

	pkgerrors "github.com/angelmondragon/revenue-engine/pkg/errors"
	pkgvalidators "github.com/angelmondragon/revenue-engine/pkg/validators"
)

const maxBodyBytes = 1 << 20

// DecodeJSONBody strictly decodes the request body into dest and runs its validate tags.
func DecodeJSONBody(r *http.Request, dest any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body")
	}
	return pkgvalidators.DecodeJSON(body, dest)
}
