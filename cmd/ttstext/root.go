package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/maauso/chatterbox-tts-api/internal/textprep"
)

type rootOptions struct {
	jsonOutput bool
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "ttstext",
		Short:         "Prepare text for speech synthesis",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print JSON instead of plain text")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log normalization details to stderr")

	cmd.AddCommand(newNormalizeCmd(opts), newChunkCmd(opts))
	return cmd
}

func (o *rootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

type normalizeOutput struct {
	Text                     string         `json:"text"`
	CharacterCount           int            `json:"character_count"`
	Substitutions            map[string]int `json:"substitutions"`
	RemovedControlCharacters int            `json:"removed_control_characters"`
	Unmapped                 []string       `json:"unmapped"`
}

func newNormalizeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize [FILE]",
		Short: "Fold text into the synthesis-safe character set",
		Long:  "Reads FILE, or stdin when FILE is omitted or \"-\", and prints the normalized text.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			res := textprep.NewNormalizer(opts.logger(cmd)).Normalize(text)

			out := cmd.OutOrStdout()
			if !opts.jsonOutput {
				_, err := fmt.Fprintln(out, res.Text)
				return err
			}

			subs := make(map[string]int, len(res.Substitutions))
			for r, n := range res.Substitutions {
				subs[string(r)] = n
			}
			unmapped := make([]string, 0, len(res.Unmapped))
			for _, r := range res.Unmapped {
				unmapped = append(unmapped, string(r))
			}
			return writeJSON(out, normalizeOutput{
				Text:                     res.Text,
				CharacterCount:           utf8.RuneCountInString(res.Text),
				Substitutions:            subs,
				RemovedControlCharacters: res.RemovedControl,
				Unmapped:                 unmapped,
			})
		},
	}
}

type chunkOptions struct {
	maxLength int
	long      bool
	raw       bool
}

func newChunkCmd(opts *rootOptions) *cobra.Command {
	copts := &chunkOptions{}
	cmd := &cobra.Command{
		Use:   "chunk [FILE]",
		Short: "Split text into synthesis-sized chunks",
		Long: "Reads FILE, or stdin when FILE is omitted or \"-\", normalizes it and prints one chunk per line.\n" +
			"With --long each line also carries the index, length and boundary of the chunk.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			if !copts.raw {
				text = textprep.NewNormalizer(opts.logger(cmd)).Normalize(text).Text
			}
			return runChunk(cmd, opts, copts, text)
		},
	}
	cmd.Flags().IntVarP(&copts.maxLength, "max-length", "n", 300, "maximum chunk length in characters")
	cmd.Flags().BoolVar(&copts.long, "long", false, "include chunk metadata")
	cmd.Flags().BoolVar(&copts.raw, "raw", false, "skip normalization")
	return cmd
}

func runChunk(cmd *cobra.Command, opts *rootOptions, copts *chunkOptions, text string) error {
	out := cmd.OutOrStdout()

	if !copts.long {
		chunks, err := textprep.SplitIntoChunks(text, copts.maxLength)
		if err != nil {
			return err
		}
		if opts.jsonOutput {
			return writeJSON(out, chunks)
		}
		for _, c := range chunks {
			if _, err := fmt.Fprintln(out, c); err != nil {
				return err
			}
		}
		return nil
	}

	chunks, err := textprep.SplitForLongGeneration(text, copts.maxLength)
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		return writeJSON(out, chunks)
	}

	var total int
	for _, c := range chunks {
		total += c.ByteCount()
		if _, err := fmt.Fprintf(out, "%d\t%d\t%s\t%s\n", c.SequenceIndex, c.CharacterCount, c.Boundary, c.Text); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s chunks, %s characters, %s\n",
		humanize.Comma(int64(len(chunks))),
		humanize.Comma(int64(utf8.RuneCountInString(text))),
		humanize.Bytes(uint64(total)),
	)
	return nil
}

func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return string(data), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
