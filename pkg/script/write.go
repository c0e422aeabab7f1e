package script

import (
	"encoding/json"
	"io"
	"os"
)

// WriteJSON writes the import script as an indented JSON array.
func WriteJSON(w io.Writer, muts []Mutation) error {
	if muts == nil {
		muts = []Mutation{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(muts)
}

// WriteLines writes one payload per line, the format the OCL bulk import
// endpoint accepts.
func WriteLines(w io.Writer, muts []Mutation) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, m := range muts {
		if err := enc.Encode(m.Payload); err != nil {
			return err
		}
	}
	return nil
}

// SaveFile writes the import script to path.
func SaveFile(path string, muts []Mutation) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteJSON(f, muts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
