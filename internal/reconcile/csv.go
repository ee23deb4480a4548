package reconcile

import (
	"os"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
)

// CSVArtifact stores the validation table as a CSV file. Useful when the
// validation sheet lives in a system that round-trips CSV better than
// XLSX.
type CSVArtifact struct{}

func (a *CSVArtifact) Read(path string) ([]Row, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "csv: read %s", path)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var rows []Row
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrapf(err, "csv: decode %s", path)
	}
	return rows, nil
}

func (a *CSVArtifact) Write(path string, rows []Row) error {
	data, err := csvutil.Marshal(rows)
	if err != nil {
		return eris.Wrap(err, "csv: encode rows")
	}
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "csv: write %s", path)
}
