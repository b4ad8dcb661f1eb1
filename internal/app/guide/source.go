package guide

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"epg/internal/app/xmltv"
)

// IsRemote 判断节目单来源是否为HTTP地址
func IsRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// fetch 读取节目单文档，gzip压缩的内容会自动解压
func (l *Loader) fetch(ctx context.Context, source string) ([]byte, error) {
	var rc io.ReadCloser
	var size int64
	var err error
	if IsRemote(source) {
		rc, size, err = l.openRemote(ctx, source)
	} else {
		rc, size, err = openFile(source)
	}
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	// 已知大小时直接拒绝过大的文档
	if size > l.opts.MaxSizeBytes {
		return nil, &xmltv.DocumentTooLargeError{Size: size, Limit: l.opts.MaxSizeBytes}
	}

	r := bufio.NewReader(rc)
	if isGzip(r) {
		gzipReader, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		defer gzipReader.Close()
		return xmltv.ReadAll(gzipReader, l.opts.MaxSizeBytes)
	}
	return xmltv.ReadAll(r, l.opts.MaxSizeBytes)
}

func (l *Loader) openRemote(ctx context.Context, source string) (io.ReadCloser, int64, error) {
	// 创建请求
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, 0, err
	}

	// 设置自定义HTTP请求头
	for k, v := range l.opts.Headers {
		req.Header.Set(k, v)
	}

	// 执行请求
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("http status code: %d", resp.StatusCode)
	}

	return resp.Body, resp.ContentLength, nil
}

func openFile(path string) (io.ReadCloser, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// isGzip 根据魔数判断是否为gzip压缩内容
func isGzip(r *bufio.Reader) bool {
	magic, err := r.Peek(2)
	return err == nil && magic[0] == 0x1f && magic[1] == 0x8b
}
