package diag

import (
	"context"
	"io"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName 为流水线各层共享的 tracer 名称。
const TracerName = "subsync"

// InitTracing 安装全局 TracerProvider，span 以 JSON 行写入 w（通常为 logs/ 下的文件）。
// 返回的 shutdown 负责冲刷并关闭导出器；未调用 InitTracing 时全局 provider 为 noop。
func InitTracing(w io.Writer, service string) (func(context.Context) error, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(service) == "" {
		service = TracerName
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", service))),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer 返回全局 provider 下的命名 tracer。
func Tracer() trace.Tracer { return otel.Tracer(TracerName) }
