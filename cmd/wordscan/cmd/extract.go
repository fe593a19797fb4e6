package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/wordscan/internal/extract"
)

// extractCmd prints address candidates found in plain text.
var extractCmd = &cobra.Command{
	Use:   "extract [file]...",
	Short: "Print three-word address candidates found in text",
	Long: `Read text from files, or from standard input when no file is given, and
print every three-word address candidate it contains. Candidates are not
validated.

Examples:
  wordscan extract notes.txt
  echo "meet at ///index.home.raft" | wordscan extract
  wordscan extract --normalize --format json < recognized.txt`,
	RunE: runExtract,
}

func runExtract(cmd *cobra.Command, args []string) error {
	bypass, _ := cmd.Flags().GetBool("bypass")
	normalize, _ := cmd.Flags().GetBool("normalize")
	format, _ := cmd.Flags().GetString("format")

	text, err := readText(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	cands := extract.New(extract.Options{Bypass: bypass}).Candidates(text)
	if normalize {
		cands = extract.Dedupe(cands)
	}

	out := cmd.OutOrStdout()
	switch format {
	case formatJSON:
		if cands == nil {
			cands = []string{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(cands)
	case formatText:
		for _, c := range cands {
			_, _ = fmt.Fprintln(out, c)
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// readText concatenates the named files, or reads r when there are none.
func readText(r io.Reader, paths []string) (string, error) {
	if len(paths) == 0 {
		b, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	var sb strings.Builder
	for _, path := range paths {
		b, err := os.ReadFile(path) //nolint:gosec // user-supplied input path
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		sb.Write(b)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().Bool("bypass", false, "print every non-empty line instead of address candidates")
	extractCmd.Flags().Bool("normalize", false, "normalize candidates and drop duplicates")
	extractCmd.Flags().StringP("format", "f", formatText, "output format (text, json)")
}
