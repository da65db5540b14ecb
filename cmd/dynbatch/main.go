package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"dyn-batch-go/backend"
	"dyn-batch-go/dynbatch"
)

var (
	configPath    string
	logLevel      string
	modelPath     string // ONNX model path; empty runs the mock executor
	tokenizerPath string // tokenizer.json path; empty runs the mock tokenizer
	vocabSize     int
	prompts       []string

	numBeams     int
	doSample     bool
	topK         int
	topP         float64
	minP         float64
	maxOutputLen int
)

var rootCmd = &cobra.Command{
	Use:   "dynbatch",
	Short: "Continuously batched scheduler for generative-model serving",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run prompts through the batching engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}
		logrus.SetLevel(level)

		if len(prompts) == 0 {
			return fmt.Errorf("no prompts given, use --prompt")
		}

		var config *dynbatch.InferenceConfig
		if configPath != "" {
			config, err = dynbatch.LoadInferenceConfig(configPath)
		} else {
			config, err = dynbatch.NewInferenceConfig()
		}
		if err != nil {
			return err
		}

		genOpts := []dynbatch.GenerationOption{
			dynbatch.WithEOSID(config.EOS),
			dynbatch.WithGenMaxOutputLen(maxOutputLen),
			dynbatch.WithNumBeams(numBeams),
			dynbatch.WithDoSample(doSample),
		}
		if topK > 0 {
			genOpts = append(genOpts, dynbatch.WithTopK(topK))
		}
		if topP < 1.0 {
			genOpts = append(genOpts, dynbatch.WithTopP(topP))
		}
		if minP > 0 {
			genOpts = append(genOpts, dynbatch.WithMinP(minP))
		}
		genConfig, err := dynbatch.NewGenerationConfig(genOpts...)
		if err != nil {
			return err
		}

		var executor dynbatch.Executor
		if modelPath != "" {
			executor, err = backend.NewONNXScorer(modelPath, vocabSize)
			if err != nil {
				return err
			}
		} else {
			logrus.Info("no model given, using mock executor")
			executor = dynbatch.NewMockExecutor(vocabSize, config.EOS, 16)
		}

		var tokenizer dynbatch.Tokenizer
		if tokenizerPath != "" {
			hf, err := backend.NewHFTokenizer(tokenizerPath)
			if err != nil {
				return err
			}
			defer hf.Close()
			tokenizer = hf
		} else {
			tokenizer = dynbatch.MockTokenizer{}
		}

		engine := dynbatch.NewEngine(config, genConfig, executor, tokenizer)
		defer engine.Close()

		promptsAny := make([]interface{}, len(prompts))
		for i, p := range prompts {
			promptsAny[i] = p
		}

		results, err := engine.Generate(promptsAny, true)
		if err != nil {
			return err
		}

		for id, out := range results {
			fmt.Printf("%s [%s]: %s\n", id, out.Status, out.Text)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "YAML engine config file")
	runCmd.Flags().StringVar(&logLevel, "log-level", "info", "log verbosity level")
	runCmd.Flags().StringVar(&modelPath, "model", "", "ONNX model path (empty: mock executor)")
	runCmd.Flags().StringVar(&tokenizerPath, "tokenizer", "", "tokenizer.json path (empty: mock tokenizer)")
	runCmd.Flags().IntVar(&vocabSize, "vocab-size", 32000, "model vocabulary size")
	runCmd.Flags().StringArrayVar(&prompts, "prompt", nil, "prompt to generate from (repeatable)")

	runCmd.Flags().IntVar(&numBeams, "num-beams", 1, "beam count for token selection")
	runCmd.Flags().BoolVar(&doSample, "do-sample", false, "sample instead of greedy selection")
	runCmd.Flags().IntVar(&topK, "top-k", 0, "top-k filtering (0: disabled)")
	runCmd.Flags().Float64Var(&topP, "top-p", 1.0, "nucleus filtering threshold (1.0: disabled)")
	runCmd.Flags().Float64Var(&minP, "min-p", 0.0, "min-p filtering threshold (0: disabled)")
	runCmd.Flags().IntVar(&maxOutputLen, "max-output-len", 256, "output length limit per request")

	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
