package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/addresolve/internal/logging"
)

func newLogsCmd() *cobra.Command {
	var (
		file  string
		lines int
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the last lines of the log file",
		Long: `Print the last lines of the JSON log written by 'serve' and by --debug.

The file defaults to logging.file from the configuration, then
~/.addresolve/logs/addresolve.log.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				if cfg, err := loadConfig(); err == nil {
					file = cfg.Logging.File
				}
			}
			path, err := logging.FindLogFile(file)
			if err != nil {
				return err
			}

			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open log file: %w", err)
			}
			defer f.Close()

			return tailLines(cmd.OutOrStdout(), f, lines)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Log file to read")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to print")

	return cmd
}

// tailLines copies the last n lines of r to w.
func tailLines(w io.Writer, r io.Reader, n int) error {
	if n <= 0 {
		return nil
	}
	ring := make([]string, n)
	var count int

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		ring[count%n] = sc.Text()
		count++
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read log file: %w", err)
	}

	start := 0
	if count > n {
		start = count - n
	}
	for i := start; i < count; i++ {
		if _, err := fmt.Fprintln(w, ring[i%n]); err != nil {
			return err
		}
	}
	return nil
}
