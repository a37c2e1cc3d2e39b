package script

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"fortio.org/safecast"
	"github.com/risor-io/risor/object"

	"autofix/internal/diag"
	"autofix/internal/source"
)

// Host functions exposed to scripts. Offsets are byte offsets into the
// global `text`.

// makeReportFn creates "report".
//
// report(rule, start, end, message)
func makeReportFn(doc source.FileID, textLen uint32, sink diag.Reporter) *object.Builtin {
	return object.NewBuiltin("report", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 4 {
			return object.NewArgsError("report", 4, len(args))
		}
		rule, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("report: rule must be a string, got %s", args[0].Type())
		}
		sp, err := spanArgs(doc, textLen, args[1], args[2])
		if err != nil {
			return object.Errorf("report: %v", err)
		}
		msg, ok := args[3].(*object.String)
		if !ok {
			return object.Errorf("report: message must be a string, got %s", args[3].Type())
		}
		sink.Report(rule.Value(), sp, msg.Value())
		return object.Nil
	})
}

// makeEditFn creates "edit".
//
// edit(start, end, new_text)
func makeEditFn(doc source.FileID, textLen uint32, edits *[]diag.TextEdit) *object.Builtin {
	return object.NewBuiltin("edit", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 3 {
			return object.NewArgsError("edit", 3, len(args))
		}
		sp, err := spanArgs(doc, textLen, args[0], args[1])
		if err != nil {
			return object.Errorf("edit: %v", err)
		}
		repl, ok := args[2].(*object.String)
		if !ok {
			return object.Errorf("edit: new_text must be a string, got %s", args[2].Type())
		}
		*edits = append(*edits, diag.TextEdit{Span: sp, NewText: repl.Value()})
		return object.Nil
	})
}

func spanArgs(doc source.FileID, textLen uint32, startObj, endObj object.Object) (source.Span, error) {
	start, err := offsetArg(startObj)
	if err != nil {
		return source.Span{}, fmt.Errorf("start: %w", err)
	}
	end, err := offsetArg(endObj)
	if err != nil {
		return source.Span{}, fmt.Errorf("end: %w", err)
	}
	sp := source.Span{File: doc, Start: start, End: end}
	if !sp.Valid(textLen) {
		return source.Span{}, fmt.Errorf("span %d-%d out of range (len %d)", start, end, textLen)
	}
	return sp, nil
}

func offsetArg(obj object.Object) (uint32, error) {
	i, ok := obj.(*object.Int)
	if !ok {
		return 0, fmt.Errorf("must be an int, got %s", obj.Type())
	}
	return safecast.Conv[uint32](i.Value())
}

func stringMap(in map[string]string) *object.Map {
	out := make(map[string]object.Object, len(in))
	for k, v := range in {
		out[k] = object.NewString(v)
	}
	return object.NewMap(out)
}

func stringList(in []string) *object.List {
	items := make([]object.Object, 0, len(in))
	for _, s := range in {
		items = append(items, object.NewString(s))
	}
	return object.NewList(items)
}

func diagnosticMap(d diag.Diagnostic) *object.Map {
	return object.NewMap(map[string]object.Object{
		"rule":    object.NewString(d.RuleID),
		"start":   object.NewInt(int64(d.Primary.Start)),
		"end":     object.NewInt(int64(d.Primary.End)),
		"line":    object.NewInt(int64(d.Location.Start.Line)),
		"message": object.NewString(d.Message),
	})
}

func diagnosticList(ds []diag.Diagnostic) *object.List {
	items := make([]object.Object, 0, len(ds))
	for _, d := range ds {
		items = append(items, diagnosticMap(d))
	}
	return object.NewList(items)
}

func sortedKeys[V any](m map[source.FileID]V) []source.FileID {
	return slices.Sorted(maps.Keys(m))
}
