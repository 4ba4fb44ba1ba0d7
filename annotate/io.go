package annotate

import (
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/tarstars/tree_codegen/tcerr"
)

//Save serializes the counts as a JSON array of arrays of unsigned integers,
//in tree order, node order.
func (c Counts) Save(w io.Writer) error {
	payload := [][]uint64(c)
	if payload == nil {
		payload = [][]uint64{}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return tcerr.Wrap(tcerr.KindIO, err, "failed to encode annotation")
	}
	_, err = w.Write(encoded)
	return tcerr.Wrap(tcerr.KindIO, err, "failed to write annotation")
}

//Load parses counts from their JSON form and validates the shape.
func Load(r io.Reader) (Counts, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, tcerr.Wrap(tcerr.KindIO, err, "failed to read annotation")
	}
	var counts [][]uint64
	if err := json.Unmarshal(payload, &counts); err != nil {
		return nil, tcerr.Wrap(tcerr.KindInvalidParam, err,
			"JSON file must contain a list of lists of integers")
	}
	return Counts(counts), nil
}

//SaveFile writes the annotation to a file on disk.
func (c Counts) SaveFile(path string) error {
	dest, err := os.Create(path)
	if err != nil {
		return tcerr.Wrapf(tcerr.KindIO, err, "can't open file %s to write", path)
	}
	defer dest.Close()
	return c.Save(dest)
}

//LoadFile reads an annotation from a file on disk.
func LoadFile(path string) (Counts, error) {
	source, err := os.Open(path)
	if err != nil {
		return nil, tcerr.Wrapf(tcerr.KindIO, err, "can't open annotation file %s", path)
	}
	defer source.Close()
	return Load(source)
}
