package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-interviewer/internal/domain"
)

// maxJSONBody caps JSON request bodies. Session blobs carry the whole chat
// transcript so this is larger than a typical API payload.
const maxJSONBody = 2 << 20

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() {
		vld = validator.New()
		vld.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return vld
}

// decodeJSON reads a size-capped JSON body into dst and validates it.
// The returned error wraps domain.ErrInvalidArgument; details lists the
// failing fields by their JSON name.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return nil, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument)
	}
	if err := getValidator().Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
		}
		details := make(map[string]string, len(ve))
		names := make([]string, 0, len(ve))
		for _, fe := range ve {
			details[fe.Field()] = fe.Tag()
			names = append(names, fe.Field())
		}
		return details, fmt.Errorf("%w: invalid or missing %s", domain.ErrInvalidArgument, strings.Join(names, ", "))
	}
	return nil, nil
}
