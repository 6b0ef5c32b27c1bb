package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Output управляет форматированием вывода CLI.
// Данные идут в w, сообщения оператору в errW.
type Output struct {
	jsonMode bool
	w        io.Writer
	errW     io.Writer
}

// Field: одна строка вертикальной записи.
type Field struct {
	Name  string
	Value string
}

// NewOutput создаёт Output в stdout/stderr. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(jsonMode, os.Stdout, os.Stderr)
}

// NewOutputTo создаёт Output с явными writer'ами.
func NewOutputTo(jsonMode bool, w, errW io.Writer) *Output {
	return &Output{jsonMode: jsonMode, w: w, errW: errW}
}

// Record выводит одну запись: пары NAME  value или JSON.
func (o *Output) Record(fields []Field, jsonData any) error {
	if o.jsonMode {
		return o.JSON(jsonData)
	}

	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	for _, f := range fields {
		fmt.Fprintf(tw, "%s\t%s\n", strings.ToUpper(f.Name), f.Value)
	}
	return tw.Flush()
}

// Table выводит строки под заголовками или JSON.
func (o *Output) Table(headers []string, rows [][]string, jsonData any) error {
	if o.jsonMode {
		return o.JSON(jsonData)
	}

	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Success выводит сообщение оператору. В JSON-режиме молчит,
// чтобы stdout и stderr можно было собирать вместе.
func (o *Output) Success(msg string) {
	if o.jsonMode {
		return
	}
	fmt.Fprintln(o.errW, msg)
}
