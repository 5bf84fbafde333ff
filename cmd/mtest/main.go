package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
)

type Execution struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
}

type TestRun struct {
	Name   string    `json:"name"`
	Result Execution `json:"result"`
}

type TargetResult struct {
	Compile Execution `json:"compile"`
	Runs    []TestRun `json:"runs"`
}

type FileTestResult struct {
	File      string        `json:"file"`
	Status    string        `json:"status"` // PASS, FAIL, SKIP, ERROR
	Message   string        `json:"message,omitempty"`
	Diff      string        `json:"diff,omitempty"`
	Reference *TargetResult `json:"reference,omitempty"`
	Target    *TargetResult `json:"target,omitempty"`
}

type TestSuiteResults map[string]*FileTestResult

// outcome is what gets compared between the reference binary and each mcc execution mode
type outcome struct {
	ExitCode int
	Stdout   string
	TimedOut bool
}

var (
	refCompiler    = flag.String("ref-compiler", "cc", "Path to the reference C compiler used to build native binaries.")
	refArgs        = flag.String("ref-args", "-w", "Arguments for the reference compiler (space-separated).")
	targetCompiler = flag.String("target-compiler", "./mcc", "Path to the mcc binary to test.")
	targetArgs     = flag.String("target-args", "", "Arguments for mcc (space-separated).")
	modes          = flag.String("modes", "run interp", "mcc execution modes to compare (space-separated: run, interp).")
	generateGolden = flag.String("generate-golden", "", "Generate a golden .json file for a given source file.")
	testFiles      = flag.String("test-files", "tests/*.c", "Glob pattern(s) for files to test (space-separated).")
	skipFiles      = flag.String("skip-files", "", "Files to skip (space-separated).")
	outputJSON     = flag.String("output", ".test_results.json", "Output file for the JSON test report.")
	timeout        = flag.Duration("timeout", 5*time.Second, "Timeout for each command execution.")
	jobs           = flag.Int("j", 4, "Number of parallel test jobs.")
	useCache       = flag.Bool("cached", false, "Prefer golden files over the reference compiler.")
	jsonDir        = flag.String("dir", "", "Directory to store/read golden JSON files (defaults to source file dir).")
)

const (
	cRed    = "\x1b[91m"
	cYellow = "\x1b[93m"
	cGreen  = "\x1b[92m"
	cCyan   = "\x1b[96m"
	cBold   = "\x1b[1m"
	cNone   = "\x1b[0m"
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	tempDir, err := os.MkdirTemp("", "mtest-*")
	if err != nil {
		log.Fatalf("%s[ERROR]%s Failed to create temp directory: %v\n", cRed, cNone, err)
	}
	defer os.RemoveAll(tempDir)
	setupInterruptHandler(tempDir)

	if *generateGolden != "" {
		handleGenerateGolden(*generateGolden, tempDir)
		return
	}

	handleRunTestSuite(tempDir)
}

// setupInterruptHandler is used to clean up on CTRL+C
func setupInterruptHandler(tempDir string) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		os.RemoveAll(tempDir)
		fmt.Printf("\n%s[INTERRUPT]%s Test run cancelled. Cleaning up...\n", cYellow, cNone)
		os.Exit(1)
	}()
}

func getJSONPath(sourceFile string) string {
	jsonFileName := "." + filepath.Base(sourceFile) + ".json"
	if *jsonDir != "" {
		return filepath.Join(*jsonDir, jsonFileName)
	}
	return filepath.Join(filepath.Dir(sourceFile), jsonFileName)
}

// hashFile computes the xxhash of a file's content
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum64()), nil
}

func handleGenerateGolden(sourceFile, tempDir string) {
	log.Printf("Generating golden file for %s...\n", sourceFile)

	fileHash, err := hashFile(sourceFile)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Could not hash source file %s: %v\n", cRed, cNone, sourceFile, err)
	}

	refResult, err := buildAndRunNative(sourceFile, tempDir, fileHash)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Could not generate golden file for %s: %v\n", cRed, cNone, sourceFile, err)
	}

	jsonData, err := json.MarshalIndent(refResult, "", "  ")
	if err != nil {
		log.Fatalf("%s[ERROR]%s Failed to marshal golden data to JSON: %v\n", cRed, cNone, err)
	}

	goldenFileName := getJSONPath(sourceFile)
	if *jsonDir != "" {
		if err := os.MkdirAll(*jsonDir, 0755); err != nil {
			log.Fatalf("%s[ERROR]%s Failed to create directory %s: %v\n", cRed, cNone, *jsonDir, err)
		}
	}

	if err := os.WriteFile(goldenFileName, jsonData, 0644); err != nil {
		log.Fatalf("%s[ERROR]%s Failed to write golden file %s: %v\n", cRed, cNone, goldenFileName, err)
	}

	log.Printf("%s[SUCCESS]%s Golden file created at %s\n", cGreen, cNone, goldenFileName)
}

func handleRunTestSuite(tempDir string) {
	_, err := exec.LookPath(*refCompiler)
	refCompilerFound := err == nil
	if !refCompilerFound && !*useCache {
		log.Printf("%s[WARN]%s Reference compiler '%s' not found. Will rely on golden files. Use --cached to suppress this warning.\n", cYellow, cNone, *refCompiler)
	}

	files, err := expandGlobPatterns(*testFiles)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Invalid glob pattern(s): %v\n", cRed, cNone, err)
	}
	if len(files) == 0 {
		log.Println("No test files found matching the pattern(s).")
		return
	}

	skipList := make(map[string]bool)
	for _, f := range strings.Fields(*skipFiles) {
		if abs, err := filepath.Abs(f); err == nil {
			skipList[abs] = true
		}
	}

	tasks := make(chan string, len(files))
	resultsChan := make(chan *FileTestResult, len(files))
	var wg sync.WaitGroup

	for i := 0; i < *jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range tasks {
				fileHash, err := hashFile(file)
				if err != nil {
					resultsChan <- &FileTestResult{File: file, Status: "ERROR", Message: "Failed to hash source file"}
					continue
				}
				resultsChan <- testFile(file, tempDir, fileHash, refCompilerFound)
			}
		}()
	}

	// Files with identical content are tested once
	seenHashes := make(map[string]string)
	for _, file := range files {
		if skipList[file] {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: "Explicitly skipped"}
			continue
		}
		fileHash, err := hashFile(file)
		if err != nil {
			resultsChan <- &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to read file for hashing: %v", err)}
			continue
		}
		if originalFile, seen := seenHashes[fileHash]; seen {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Content is identical to %s", originalFile)}
			continue
		}
		seenHashes[fileHash] = file
		tasks <- file
	}
	close(tasks)

	wg.Wait()
	close(resultsChan)

	var allResults []*FileTestResult
	for result := range resultsChan {
		allResults = append(allResults, result)
	}

	sort.Slice(allResults, func(i, j int) bool {
		return allResults[i].File < allResults[j].File
	})

	printSummary(allResults)
	resultsMap := writeJSONReport(allResults)

	if hasFailures(resultsMap) {
		os.Exit(1)
	}
}

func testFile(file, tempDir, fileHash string, refCompilerFound bool) *FileTestResult {
	goldenFile := getJSONPath(file)
	_, err := os.Stat(goldenFile)
	hasGoldenFile := err == nil

	var refResult *TargetResult
	switch {
	case hasGoldenFile && (*useCache || !refCompilerFound):
		goldenData, err := os.ReadFile(goldenFile)
		if err != nil {
			return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not read golden file %s: %v", goldenFile, err)}
		}
		refResult = &TargetResult{}
		if err := json.Unmarshal(goldenData, refResult); err != nil {
			return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not parse golden file %s: %v", goldenFile, err)}
		}
	case refCompilerFound:
		refResult, err = buildAndRunNative(file, tempDir, "ref-"+fileHash)
		if err != nil {
			return &FileTestResult{
				File:      file,
				Status:    "SKIP",
				Message:   "Reference compiler rejected the file",
				Diff:      refResult.Compile.Stderr,
				Reference: refResult,
			}
		}
	default:
		return &FileTestResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Reference compiler '%s' not found and no golden file exists", *refCompiler)}
	}

	targetResult, err := compileAndRunTarget(file, tempDir, "target-"+fileHash)
	if err != nil {
		return &FileTestResult{
			File:      file,
			Status:    "FAIL",
			Message:   "mcc failed to compile, but the reference succeeded",
			Diff:      fmt.Sprintf("mcc STDERR:\n%s", targetResult.Compile.Stderr),
			Reference: refResult,
			Target:    targetResult,
		}
	}

	return compareRuntimeResults(file, refResult, targetResult)
}

// buildAndRunNative compiles the file with the reference compiler and runs the binary once
func buildAndRunNative(file, tempDir, tag string) (*TargetResult, error) {
	binPath := filepath.Join(tempDir, tag)
	args := append(strings.Fields(*refArgs), "-o", binPath, file)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	result := &TargetResult{Compile: executeCommand(ctx, *refCompiler, args...)}
	if result.Compile.ExitCode != 0 || result.Compile.TimedOut {
		return result, fmt.Errorf("reference compilation failed with exit code %d", result.Compile.ExitCode)
	}

	runCtx, runCancel := context.WithTimeout(context.Background(), *timeout)
	defer runCancel()
	result.Runs = append(result.Runs, TestRun{Name: "native", Result: executeCommand(runCtx, binPath)})
	return result, nil
}

// compileAndRunTarget compiles the file to assembly with mcc, then executes it once per mode
func compileAndRunTarget(file, tempDir, tag string) (*TargetResult, error) {
	asmPath := filepath.Join(tempDir, tag+".s")
	baseArgs := strings.Fields(*targetArgs)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	compileArgs := append(append([]string{}, baseArgs...), "-o", asmPath, file)
	result := &TargetResult{Compile: executeCommand(ctx, *targetCompiler, compileArgs...)}
	if result.Compile.ExitCode != 0 || result.Compile.TimedOut {
		return result, fmt.Errorf("mcc compilation failed with exit code %d", result.Compile.ExitCode)
	}

	for _, mode := range strings.Fields(*modes) {
		runCtx, runCancel := context.WithTimeout(context.Background(), *timeout)
		runArgs := append(append([]string{}, baseArgs...), "--"+mode, file)
		result.Runs = append(result.Runs, TestRun{Name: mode, Result: executeCommand(runCtx, *targetCompiler, runArgs...)})
		runCancel()
	}
	return result, nil
}

func compareRuntimeResults(file string, refResult, targetResult *TargetResult) *FileTestResult {
	if len(refResult.Runs) == 0 {
		return &FileTestResult{File: file, Status: "ERROR", Message: "Reference result has no runs", Reference: refResult, Target: targetResult}
	}
	ref := refResult.Runs[0].Result
	want := outcome{ExitCode: ref.ExitCode, Stdout: ref.Stdout, TimedOut: ref.TimedOut}

	var diffs strings.Builder
	for _, run := range targetResult.Runs {
		got := outcome{ExitCode: run.Result.ExitCode, Stdout: run.Result.Stdout, TimedOut: run.Result.TimedOut}
		if diff := cmp.Diff(want, got); diff != "" {
			diffs.WriteString(fmt.Sprintf("Mode '%s' mismatch (-native +%s):\n%s", run.Name, run.Name, diff))
		}
	}

	if diffs.Len() > 0 {
		return &FileTestResult{
			File:      file,
			Status:    "FAIL",
			Message:   "Exit code or output mismatch",
			Diff:      diffs.String(),
			Reference: refResult,
			Target:    targetResult,
		}
	}

	return &FileTestResult{
		File:      file,
		Status:    "PASS",
		Message:   fmt.Sprintf("All modes agree (exit code %d)", want.ExitCode),
		Reference: refResult,
		Target:    targetResult,
	}
}

// executeCommand runs a command with a timeout and captures its output
func executeCommand(ctx context.Context, command string, args ...string) Execution {
	startTime := time.Now()
	cmd := exec.CommandContext(ctx, command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	execResult := Execution{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(startTime),
	}

	if ctx.Err() == context.DeadlineExceeded {
		execResult.TimedOut = true
		execResult.ExitCode = -1
	} else if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			execResult.ExitCode = exitErr.ExitCode()
		} else {
			execResult.ExitCode = -2
			execResult.Stderr += "\nExecution error: " + err.Error()
		}
	}

	return execResult
}

func printSummary(results []*FileTestResult) {
	var passed, failed, skipped, errored int
	var totalCompile time.Duration
	var compiled int

	for _, result := range results {
		fmt.Println("----------------------------------------------------------------------")
		fmt.Printf("Testing %s%s%s...\n", cCyan, result.File, cNone)

		switch result.Status {
		case "PASS":
			passed++
			fmt.Printf("  [%sPASS%s] %s\n", cGreen, cNone, result.Message)
		case "FAIL":
			failed++
			fmt.Printf("  [%sFAIL%s] %s\n", cRed, cNone, result.Message)
			fmt.Println(formatDiff(result.Diff))
		case "SKIP":
			skipped++
			fmt.Printf("  [%sSKIP%s] %s\n", cYellow, cNone, result.Message)
		case "ERROR":
			errored++
			fmt.Printf("  [%sERROR%s] %s\n", cRed, cNone, result.Message)
		}

		if result.Target != nil {
			compiled++
			totalCompile += result.Target.Compile.Duration
			for _, run := range result.Target.Runs {
				fmt.Printf("    %-8s exit %3d in %s\n", run.Name, run.Result.ExitCode, run.Result.Duration.Round(time.Microsecond))
			}
		}
	}

	fmt.Println("----------------------------------------------------------------------")
	fmt.Printf("%sTest Summary:%s %s%d Passed%s, %s%d Failed%s, %s%d Skipped%s, %s%d Errored%s, %d Total\n",
		cBold, cNone, cGreen, passed, cNone, cRed, failed, cNone, cYellow, skipped, cNone, cRed, errored, cNone, len(results))
	if compiled > 0 {
		fmt.Printf("Average mcc compile time: %s\n", (totalCompile / time.Duration(compiled)).Round(time.Microsecond))
	}
}

func formatDiff(diff string) string {
	if diff == "" {
		return ""
	}
	var builder strings.Builder
	builder.WriteString("    --- Diff ---\n")
	for _, line := range strings.Split(diff, "\n") {
		trimmedLine := strings.TrimSpace(line)
		if strings.HasPrefix(trimmedLine, "-") {
			builder.WriteString(cRed)
		} else if strings.HasPrefix(trimmedLine, "+") {
			builder.WriteString(cGreen)
		}
		builder.WriteString("    " + line)
		builder.WriteString(cNone)
		builder.WriteString("\n")
	}
	return builder.String()
}

func writeJSONReport(results []*FileTestResult) TestSuiteResults {
	resultsMap := make(TestSuiteResults, len(results))
	for _, r := range results {
		resultsMap[r.File] = r
	}

	jsonData, err := json.MarshalIndent(resultsMap, "", "  ")
	if err != nil {
		log.Printf("%s[ERROR]%s Failed to marshal results to JSON: %v\n", cRed, cNone, err)
		return resultsMap
	}

	outputFile := *outputJSON
	if *jsonDir != "" {
		if err := os.MkdirAll(*jsonDir, 0755); err != nil {
			log.Printf("%s[ERROR]%s Failed to create dir %s: %v\n", cRed, cNone, *jsonDir, err)
		}
		outputFile = filepath.Join(*jsonDir, *outputJSON)
	}

	if err := os.WriteFile(outputFile, jsonData, 0644); err != nil {
		log.Printf("%s[ERROR]%s Failed to write JSON report to %s: %v\n", cRed, cNone, outputFile, err)
	} else {
		fmt.Printf("Full test report saved to %s\n", outputFile)
	}
	return resultsMap
}

func hasFailures(results TestSuiteResults) bool {
	for _, result := range results {
		if result.Status == "FAIL" || result.Status == "ERROR" {
			return true
		}
	}
	return false
}

func expandGlobPatterns(patterns string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		files, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, file := range files {
			absFile, err := filepath.Abs(file)
			if err != nil {
				continue
			}
			if !seen[absFile] {
				if info, err := os.Stat(absFile); err == nil && info.Mode().IsRegular() {
					allFiles = append(allFiles, absFile)
					seen[absFile] = true
				}
			}
		}
	}
	return allFiles, nil
}
