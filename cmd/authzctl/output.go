package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// printResult 按 --output 输出结果
func printResult(v interface{}) error {
	return writeResult(os.Stdout, globalFlags.OutputFormat, v)
}

func writeResult(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("不支持的输出格式: %s (可用: json, yaml)", format)
	}
}
