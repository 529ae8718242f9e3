package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/itsmostafa/goconsole/internal/bridge"
	"github.com/itsmostafa/goconsole/internal/hostfs"
)

// maxFetchBytes bounds a fetched body.
const maxFetchBytes = 8 << 20

// hostOps are the controller operations every CLI console exposes as
// host.<name>(...). Filesystem operations are confined to root.
func hostOps(root string) (map[string]bridge.Func, error) {
	fs, err := hostfs.New(root)
	if err != nil {
		return nil, err
	}
	ops := fs.Ops()
	ops["fetch"] = fetchOp
	ops["getenv"] = getenvOp
	ops["now"] = nowOp
	return ops, nil
}

// fetchOp performs a GET and returns the response body as text.
func fetchOp(ctx context.Context, args json.RawMessage) (any, error) {
	var in []string
	if err := json.Unmarshal(args, &in); err != nil || len(in) == 0 {
		return nil, fmt.Errorf("fetch expects a url string")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, in[0], nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: %s", in[0], resp.Status)
	}
	return string(body), nil
}

func getenvOp(ctx context.Context, args json.RawMessage) (any, error) {
	var in []string
	if err := json.Unmarshal(args, &in); err != nil || len(in) == 0 {
		return nil, fmt.Errorf("getenv expects a variable name")
	}
	v, ok := os.LookupEnv(in[0])
	if !ok {
		return nil, nil
	}
	return v, nil
}

func nowOp(ctx context.Context, args json.RawMessage) (any, error) {
	return time.Now().Format(time.RFC3339Nano), nil
}
