package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/marmos91/storagebox/pkg/api/middleware"
	"github.com/marmos91/storagebox/pkg/identity"
	"github.com/marmos91/storagebox/pkg/metadata"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeJSONBody decodes and validates a JSON request body. Returns false
// after writing a 400 when either step fails.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		BadRequest(w, "Invalid request body")
		return false
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			BadRequest(w, fmt.Sprintf("field %s failed %q validation", verrs[0].Namespace(), verrs[0].Tag()))
			return false
		}
		BadRequest(w, "Invalid request body")
		return false
	}
	return true
}

// entryIDParam parses a path parameter holding an entry ID.
func entryIDParam(w http.ResponseWriter, r *http.Request, name string) (metadata.EntryID, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		BadRequest(w, fmt.Sprintf("invalid %s %q", name, raw))
		return 0, false
	}
	return metadata.EntryID(id), true
}

// currentUser returns the caller attached by the auth middleware. Routes
// behind RequireUser always have one.
func currentUser(r *http.Request) *identity.UserContext {
	return middleware.UserFromContext(r.Context())
}
