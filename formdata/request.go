// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package formdata

import (
	"net/http"
	"strings"

	"github.com/coreware/multipart"
)

// IsFormRequest reports whether r's Content-Type primary value is
// multipart/form-data or application/x-www-form-urlencoded, the two
// encodings an HTML form submission may use.
func IsFormRequest(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return false
	}
	primary, _, err := multipart.ParseContentType(ct)
	if err != nil {
		return false
	}
	return strings.EqualFold(primary, "multipart/form-data") ||
		strings.EqualFold(primary, "application/x-www-form-urlencoded")
}

// ParseFormData parses r.Body as a multipart/form-data body using b
// (the zero Builder applies package defaults). The caller must Close
// the returned Form once done with any of its Parts' temporary files.
func ParseFormData(r *http.Request, b Builder) (*Form, error) {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return nil, multipart.ErrMissingDisposition
	}
	boundary, err := multipart.BoundaryFromContentType(ct)
	if err != nil {
		return nil, err
	}
	_, params, err := multipart.ParseContentType(ct)
	if err != nil {
		return nil, err
	}
	return b.Build(r.Body, boundary, params["charset"])
}

// FormRequest wraps an *http.Request to offer form-data-specific
// convenience once its body has been parsed with ParseFormData.
type FormRequest struct {
	*http.Request
	Form *Form
}

// NewFormRequest parses r's body with b and wraps the result. The
// caller must Close the returned FormRequest's Form when done.
func NewFormRequest(r *http.Request, b Builder) (*FormRequest, error) {
	form, err := ParseFormData(r, b)
	if err != nil {
		return nil, err
	}
	return &FormRequest{Request: r, Form: form}, nil
}

// FormValue returns the first value of the named field, as
// (*http.Request).FormValue does for application/x-www-form-urlencoded
// bodies.
func (f *FormRequest) FormValue(name string) string {
	return f.Form.Values.Get(name)
}

// FormFile returns the first file part of the named field, if any.
func (f *FormRequest) FormFile(name string) (*Part, bool) {
	parts := f.Form.Files[name]
	if len(parts) == 0 {
		return nil, false
	}
	return parts[0], true
}
