package cli

import (
	"fmt"
	"io"
	"strings"

	"scene-server/internal/app"
	"scene-server/internal/models"
	"scene-server/internal/service"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "turn <chatId> <query...>",
		Short: "Run one chat turn and print the scene",
		Args:  cobra.MinimumNArgs(2),
		Run:   runTurn,
	}
	cmd.Flags().String("kind", string(models.TurnStory), "Turn kind: story or friend")
	cmd.Flags().Bool("blocking", false, "Generate each step in one piece instead of streaming")
	RootCmd.AddCommand(cmd)
}

func runTurn(cmd *cobra.Command, args []string) {
	chatID, err := uuid.Parse(args[0])
	if err != nil {
		exitErr("chat id", err)
	}
	kind, _ := cmd.Flags().GetString("kind")
	blocking, _ := cmd.Flags().GetBool("blocking")
	mode := service.ModeStream
	if blocking {
		mode = service.ModeBlocking
	}

	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		exitErr("connect", err)
	}
	defer s.Close()

	mem := app.NewMemory(s.cfg, s.infra, s.log)
	// Без очереди: фоновые записи памяти дожидаемся перед выходом
	s.cfg.MemoryWriteMode = "async"
	turns, err := app.NewTurns(s.cfg, s.infra, mem, s.log, s.boot)
	if err != nil {
		exitErr("build pipeline", err)
	}
	defer turns.Wait()

	req := service.TurnRequest{ChatID: chatID, Query: strings.Join(args[1:], " "), Kind: models.TurnKind(kind)}
	failed := false
	for ev := range turns.Service.Events(ctx, req, mode) {
		if printEvent(cmd.OutOrStdout(), cmd.ErrOrStderr(), ev) {
			failed = true
		}
	}
	if failed {
		exitErr("turn", fmt.Errorf("turn did not complete"))
	}
}

// printEvent печатает текст сцены в out, служебные события в errOut.
// Возвращает true для событий ошибки.
func printEvent(out, errOut io.Writer, ev models.TurnEvent) bool {
	switch data := ev.Data.(type) {
	case models.StepStartData:
		who := data.Step.Actor()
		fmt.Fprintf(errOut, "\n[%d] %s (%s)\n", data.StepIndex, data.Step.Type, who)
	case models.ChunkData:
		fmt.Fprint(out, data.Text)
	case models.StepDoneData:
		fmt.Fprintln(out)
	case models.StepErrorData:
		fmt.Fprintf(errOut, "\nstep %d failed: %s\n", data.StepIndex, data.Error)
		return true
	case models.ErrorData:
		fmt.Fprintf(errOut, "turn failed: %s\n", data.Error)
		return true
	case models.DoneData:
		fmt.Fprintf(errOut, "\ndone: %d step(s)\n", data.TotalSteps)
	}
	return false
}
