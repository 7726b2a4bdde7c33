package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	openapi_types "github.com/oapi-codegen/runtime/types"
)

// errBadBody marks request bodies that are not a JSON object.
var errBadBody = errors.New("request body must be a JSON object")

// decodeObject reads the request body as a JSON object. Stores validate
// the fields, so no shape beyond "object" is enforced here.
func decodeObject(r *http.Request) (map[string]any, error) {
	var m map[string]any
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&m); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, err
		}
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: body is empty", errBadBody)
		}
		return nil, fmt.Errorf("%w: %v", errBadBody, err)
	}
	if m == nil {
		return nil, errBadBody
	}
	return m, nil
}

// parseDate accepts a YYYY-MM-DD path or query value and returns it in
// canonical form.
func parseDate(s string) (string, error) {
	var d openapi_types.Date
	if err := json.Unmarshal([]byte(strconv.Quote(s)), &d); err != nil {
		return "", fmt.Errorf("date %q must be YYYY-MM-DD", s)
	}
	return d.Format(openapi_types.DateFormat), nil
}
