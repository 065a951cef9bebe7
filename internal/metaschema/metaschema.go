// Package metaschema checks that a schema document is itself a well-formed
// draft-04 JSON Schema before it is imported.
package metaschema

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"

	importerrors "github.com/robso86/jsonschema-mapper/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed draft04.json
var draft04 []byte

const metaURL = "https://jsonschema-mapper.local/meta/draft-04.json"

// Checker validates decoded schema documents against the draft-04
// meta-schema. It is safe for concurrent use.
type Checker struct {
	schema *jsonschema.Schema
}

func New() (*Checker, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft4
	if err := c.AddResource(metaURL, bytes.NewReader(draft04)); err != nil {
		return nil, fmt.Errorf("loading meta-schema: %w", err)
	}
	sch, err := c.Compile(metaURL)
	if err != nil {
		return nil, fmt.Errorf("compiling meta-schema: %w", err)
	}
	return &Checker{schema: sch}, nil
}

// MustNew is New for process start-up.
func MustNew() *Checker {
	c, err := New()
	if err != nil {
		panic(err)
	}
	return c
}

// Check reports how doc violates the meta-schema. doc must come from
// encoding/json, with or without UseNumber.
func (c *Checker) Check(doc any) error {
	err := c.schema.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		return fmt.Errorf("%w: not a draft-04 schema: %s", importerrors.ErrInvalidInput, ve.Error())
	}
	return fmt.Errorf("meta-schema check: %w", err)
}
