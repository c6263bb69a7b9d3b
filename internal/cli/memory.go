package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"scene-server/internal/app"
	"scene-server/internal/memory"

	"github.com/spf13/cobra"
)

func init() {
	memoryCmd := &cobra.Command{
		Use:   "memory",
		Short: "Write long-term memories",
	}
	put := &cobra.Command{
		Use:   "put <file|->",
		Short: "Index profiles and events from a JSON file",
		Long:  `Reads {"profiles":[...],"events":[...]} from a file, or stdin when the argument is "-".`,
		Args:  cobra.ExactArgs(1),
		Run:   runMemoryPut,
	}
	memoryCmd.AddCommand(put)
	RootCmd.AddCommand(memoryCmd)
}

func runMemoryPut(cmd *cobra.Command, args []string) {
	req, err := readPutRequest(args[0], cmd.InOrStdin())
	if err != nil {
		exitErr("read memories", err)
	}

	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		exitErr("connect", err)
	}
	defer s.Close()

	mem := app.NewMemory(s.cfg, s.infra, s.log)
	res, err := mem.Writer.Put(ctx, req)
	if err != nil {
		exitErr("put", err)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(res)
}

// readPutRequest читает пакет памяти из файла или stdin ("-").
func readPutRequest(path string, stdin io.Reader) (memory.PutRequest, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return memory.PutRequest{}, err
		}
		defer f.Close()
		r = f
	}
	var req memory.PutRequest
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return memory.PutRequest{}, fmt.Errorf("invalid memory file: %w", err)
	}
	if req.Empty() {
		return memory.PutRequest{}, fmt.Errorf("memory file has no profiles or events")
	}
	return req, nil
}
