package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Flowstack/internal/service"
)

// ErrEmptyFlowFile — файл определения не содержит документа.
var ErrEmptyFlowFile = errors.New("flow file is empty")

// LoadFlowFile читает определение flow из YAML- или JSON-файла.
// "-" означает stdin.
//
//	name: backup
//	cron_expr: "0 3 * * *"
//	nodes:
//	  - node_id: A
//	    name: delay
//	    input_params:
//	      DELAY_SECONDS: {value: 1}
func LoadFlowFile(path string) (*service.CreateFlowRequest, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read flow file: %w", err)
	}
	return ParseFlow(data)
}

// ParseFlow разбирает определение flow. JSON — подмножество YAML,
// поэтому оба формата читаются одним декодером. Неизвестные ключи
// считаются ошибкой.
func ParseFlow(data []byte) (*service.CreateFlowRequest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var req service.CreateFlowRequest
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFlowFile
		}
		return nil, fmt.Errorf("parse flow file: %w", err)
	}
	return &req, nil
}

func parseFlowID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid flow ID %q", arg)
	}
	return id, nil
}
