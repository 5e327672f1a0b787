package catalog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dramaproject/drama/model"
	"github.com/dramaproject/drama/process"
	"github.com/dramaproject/drama/storage"
)

// importFile fetches a file from a public url into storage and streams a
// TempFile record downstream.
func importFile(ctx context.Context, pcs *process.Process) (*model.TaskResult, error) {
	rawURL, err := stringParam(pcs.Params, "url")
	if err != nil {
		return nil, err
	}
	if extra := stringParamOr(pcs.Params, "parameters", ""); extra != "" {
		rawURL += extra
	}

	filePath, err := download(ctx, pcs, rawURL, "")
	if err != nil {
		return nil, err
	}

	remote, err := pcs.Storage.PutFile(filePath, "")
	if err != nil {
		return nil, err
	}

	record := TempFile.MustRecord(map[string]any{"resource": remote.Resource})
	if _, err := pcs.ToDownstream(ctx, record); err != nil {
		return nil, err
	}

	return &model.TaskResult{
		Message: fmt.Sprintf("imported %s", rawURL),
		Files:   []storage.Resource{remote},
	}, nil
}

// importTSV fetches a tab-separated file, strips comments, normalizes it to
// out.tsv and streams a SimpleTabularDataset record downstream.
func importTSV(ctx context.Context, pcs *process.Process) (*model.TaskResult, error) {
	rawURL, err := stringParam(pcs.Params, "url")
	if err != nil {
		return nil, err
	}
	delimiter := stringParamOr(pcs.Params, "delimiter", "\t")
	comment := stringParamOr(pcs.Params, "comment", "#")

	filePath, err := download(ctx, pcs, rawURL, "")
	if err != nil {
		return nil, err
	}

	outPath := filepath.Join(pcs.Storage.LocalDir(), "out.tsv")
	if err := decomment(filePath, outPath, delimiter, comment); err != nil {
		return nil, err
	}

	remote, err := pcs.Storage.PutFile(outPath, "")
	if err != nil {
		return nil, err
	}

	record := SimpleTabularDataset.MustRecord(map[string]any{
		"resource":    remote.Resource,
		"delimiter":   "\t",
		"file_format": ".tsv",
	})
	if _, err := pcs.ToDownstream(ctx, record); err != nil {
		return nil, err
	}

	return &model.TaskResult{
		Message: fmt.Sprintf("imported %s", rawURL),
		Files:   []storage.Resource{remote},
	}, nil
}

// download fetches a url into the task's scratch directory.
func download(ctx context.Context, pcs *process.Process, rawURL, rename string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("catalog: parse url %s: %w", rawURL, err)
	}

	fileName := rename
	if fileName == "" {
		fileName = path.Base(parsed.Path)
	}
	filePath := filepath.Join(pcs.Storage.LocalDir(), fileName)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("catalog: fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("catalog: fetch %s: unexpected status %s", rawURL, resp.Status)
	}

	out, err := os.Create(filePath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("catalog: write %s: %w", filePath, err)
	}

	pcs.Info(fmt.Sprintf("Downloaded %s to %s", rawURL, filePath))
	return filePath, out.Close()
}

// decomment copies a delimited file dropping comments and blank lines.
func decomment(inPath, outPath, delimiter, comment string) error {
	in, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer in.Close()

	raw, err := io.ReadAll(in)
	if err != nil {
		return err
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	writer := csv.NewWriter(out)
	writer.Comma = rune(delimiter[0])

	for _, line := range strings.Split(string(raw), "\n") {
		cleaned, _, _ := strings.Cut(line, comment)
		cleaned = strings.TrimSpace(cleaned)
		if cleaned == "" {
			continue
		}
		if err := writer.Write(strings.Split(cleaned, delimiter)); err != nil {
			return err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return out.Close()
}

// readTSV localizes an upstream tabular dataset and logs its rows.
func readTSV(ctx context.Context, pcs *process.Process) (*model.TaskResult, error) {
	inputs, err := pcs.GetFromUpstream(ctx)
	if err != nil {
		return nil, err
	}

	datasets := inputs["TabularDataset"]
	if len(datasets) == 0 {
		return nil, fmt.Errorf("catalog: no TabularDataset received from upstream")
	}

	dataset, ok := datasets[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("catalog: unexpected TabularDataset payload")
	}

	resource, _ := dataset["resource"].(string)
	delimiter, _ := dataset["delimiter"].(string)
	if delimiter == "" {
		delimiter = "\t"
	}

	localPath, err := pcs.Storage.GetFile(resource)
	if err != nil {
		return nil, err
	}

	in, err := os.Open(localPath)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	reader := csv.NewReader(in)
	reader.Comma = rune(delimiter[0])
	reader.FieldsPerRecord = -1

	rows := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("catalog: read %s: %w", localPath, err)
		}
		pcs.Info(strings.Join(row, delimiter))
		rows++
	}

	return &model.TaskResult{Message: fmt.Sprintf("read %d rows", rows)}, nil
}
