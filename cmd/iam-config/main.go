package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Ashokgmindia/review360/iam"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "convert":
		handleConvert()
	case "validate":
		handleValidate()
	case "stats":
		handleStats()
	case "export":
		handleExport()
	case "explain":
		handleExplain()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("iam-config - Policy matrix tool for Review360")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  iam-config convert <input> <output>             - Convert between formats")
	fmt.Println("  iam-config validate <file>                      - Validate a matrix config")
	fmt.Println("  iam-config stats <file>                         - Show matrix statistics")
	fmt.Println("  iam-config export <output>                      - Export the built-in matrix")
	fmt.Println("  iam-config explain <file> <role> <res> <action> - Show the cell for a combination")
	fmt.Println()
	fmt.Println("Supported formats: .yaml, .yml, .json, .bin")
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: iam-config convert <input> <output>")
		os.Exit(1)
	}

	inputFile := os.Args[2]
	outputFile := os.Args[3]

	cfg, err := loadConfig(inputFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := saveConfig(cfg, outputFile); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Converted %s -> %s\n", inputFile, outputFile)

	inStat, _ := os.Stat(inputFile)
	outStat, _ := os.Stat(outputFile)
	if inStat != nil && outStat != nil {
		reduction := (1 - float64(outStat.Size())/float64(inStat.Size())) * 100
		if reduction > 0 {
			fmt.Printf("Size reduced by %.1f%% (%d -> %d bytes)\n",
				reduction, inStat.Size(), outStat.Size())
		} else {
			fmt.Printf("Size increased by %.1f%% (%d -> %d bytes)\n",
				-reduction, inStat.Size(), outStat.Size())
		}
	}
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: iam-config validate <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	m, err := cfg.ToMatrix()
	if err != nil {
		fmt.Printf("Invalid matrix: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Version:    %d\n", m.Version)
	fmt.Printf("  Cells:      %d\n", m.RuleCount())
	fmt.Printf("  Field sets: %d\n", m.FieldSetCount())
	fmt.Printf("  Checksum:   %s\n", m.Checksum())
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: iam-config stats <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	m, err := cfg.ToMatrix()
	if err != nil {
		fmt.Printf("Invalid matrix: %v\n", err)
		os.Exit(1)
	}

	stat, _ := os.Stat(filename)

	fmt.Println("Policy Matrix Statistics")
	fmt.Println("========================")
	if stat != nil {
		fmt.Printf("File size: %d bytes\n", stat.Size())
	}
	fmt.Printf("Version: %d\n", m.Version)
	fmt.Printf("Checksum: %s\n", m.Checksum())
	fmt.Println()

	total := len(iam.ResourceTypes()) * len(iam.Roles()) * len(iam.Actions())
	fmt.Println("Cells:")
	fmt.Printf("  Explicit:     %d\n", m.RuleCount())
	fmt.Printf("  Closed (deny): %d\n", total-m.RuleCount())
	fmt.Println()

	fmt.Println("Grants per role:")
	for _, role := range iam.Roles() {
		count := 0
		gated := 0
		for _, rt := range iam.ResourceTypes() {
			for _, a := range iam.Actions() {
				rule, ok := m.Rule(rt, role, a)
				if !ok || !rule.Allow {
					continue
				}
				count++
				if rule.Predicate != iam.PredicateNone {
					gated++
				}
			}
		}
		fmt.Printf("  %-14s %3d (%d ownership-gated)\n", role, count, gated)
	}
	fmt.Println()

	fmt.Println("Engine Configuration:")
	fmt.Printf("  Decision cache TTL: %dms\n", cfg.Engine.DecisionCacheTTL)
	fmt.Printf("  Ristretto counters: %d\n", cfg.Engine.RistrettoNumCounter)
}

func handleExport() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: iam-config export <output>")
		os.Exit(1)
	}

	outputFile := os.Args[2]
	cfg := iam.ConfigFromMatrix(iam.DefaultMatrix())
	if err := saveConfig(cfg, outputFile); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Exported built-in matrix to %s\n", outputFile)
}

func handleExplain() {
	if len(os.Args) < 6 {
		fmt.Println("Usage: iam-config explain <file> <role> <resource> <action>")
		os.Exit(1)
	}

	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	m, err := cfg.ToMatrix()
	if err != nil {
		fmt.Printf("Invalid matrix: %v\n", err)
		os.Exit(1)
	}

	role := iam.Role(os.Args[3])
	rt := iam.ResourceType(os.Args[4])
	action := iam.Action(os.Args[5])

	rule, ok := m.Rule(rt, role, action)
	if !ok {
		fmt.Printf("%s/%s/%s: no cell (deny, closed world)\n", role, rt, action)
		return
	}
	if !rule.Allow {
		fmt.Printf("%s/%s/%s: explicit deny\n", role, rt, action)
		return
	}
	fmt.Printf("%s/%s/%s: allow, predicate=%s\n", role, rt, action, rule.Predicate)
	if action == iam.ActionUpdate {
		if set := m.UpdateFields(rt, role); set != nil {
			fmt.Printf("  writable fields: %s\n", strings.Join(set.Names(), ", "))
		}
	}
	if action == iam.ActionCreate {
		if set := m.CreateFields(rt, role); set != nil {
			fmt.Printf("  settable fields: %s\n", strings.Join(set.Names(), ", "))
		}
	}
}

func loadConfig(filename string) (*iam.MatrixConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	loader := iam.NewConfigLoader()
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".yaml", ".yml":
		return loader.LoadYAML(data)
	case ".json":
		return loader.LoadJSON(data)
	case ".bin":
		return loader.LoadBinary(data)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
}

func saveConfig(cfg *iam.MatrixConfig, filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))

	var data []byte
	var err error

	switch ext {
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	case ".json":
		data, err = cfg.ToJSON()
	case ".bin":
		data, err = iam.EncodeBinaryConfig(cfg)
	default:
		return fmt.Errorf("unsupported file format: %s", ext)
	}

	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
