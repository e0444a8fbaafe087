package goGateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const defaultDownloadName = "download"

// Upload sends file as multipart/form-data. The JSON Content-Type is replaced by the
// multipart boundary and the CSRF token is always attached. Method defaults to POST.
func (g *Gateway) Upload(ctx context.Context, endpoint string, file FileUpload, opts RequestOptions) (*Response, error) {
	if file.Content == nil {
		return nil, &Error{Kind: KindValidation, Code: CodeInvalidRequest, Message: "upload content is required"}
	}
	body, contentType, err := buildMultipart(file)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Code: CodeInvalidRequest, Message: "could not encode upload", Err: err}
	}
	if opts.Method == "" {
		opts.Method = http.MethodPost
	}
	return g.do(ctx, call{
		endpoint:    endpoint,
		method:      normalizeMethod(opts.Method),
		opts:        opts,
		body:        body,
		contentType: contentType,
		alwaysCSRF:  true,
	})
}

func buildMultipart(file FileUpload) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for k, v := range file.Fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}

	field := file.FieldName
	if field == "" {
		field = "file"
	}
	name := filepath.Base(file.Filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "upload"
	}
	ct := file.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     field,
		"filename": name,
	}))
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, file.Content); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// Download streams a response body to opts.Writer, or to a file in opts.Dir (default the
// working directory). The filename comes from opts, then Content-Disposition, then the
// endpoint's last path segment.
func (g *Gateway) Download(ctx context.Context, endpoint string, opts DownloadOptions) (*DownloadResult, error) {
	req := opts.Request
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	var result DownloadResult
	_, err := g.do(ctx, call{
		endpoint:    endpoint,
		method:      normalizeMethod(req.Method),
		opts:        req,
		contentType: contentTypeJSON,
		handle: func(resp *http.Response) (*Response, error) {
			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				return nil, decodeError(resp)
			}
			r, err := saveDownload(resp, endpoint, opts)
			if err != nil {
				return nil, err
			}
			result = r
			return &Response{Success: true, StatusCode: resp.StatusCode, Header: resp.Header.Clone()}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func saveDownload(resp *http.Response, endpoint string, opts DownloadOptions) (DownloadResult, error) {
	name := resolveFilename(opts.Filename, resp.Header.Get("Content-Disposition"), endpoint)
	out := DownloadResult{Filename: name, ContentType: resp.Header.Get("Content-Type")}

	if opts.Writer != nil {
		n, err := io.Copy(opts.Writer, resp.Body)
		out.Bytes = n
		if err != nil {
			return out, networkError(CodeNetwork, fmt.Errorf("download: %w", err))
		}
		return out, nil
	}

	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+name+".part-*")
	if err != nil {
		return out, &Error{Kind: KindClient, Code: CodeInvalidRequest, Message: "cannot create download file", Err: err}
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return out, networkError(CodeNetwork, fmt.Errorf("download: %w", err))
	}

	final := filepath.Join(dir, name)
	if err := os.Rename(tmpPath, final); err != nil {
		_ = os.Remove(tmpPath)
		return out, &Error{Kind: KindClient, Code: CodeInvalidRequest, Message: "cannot save download", Err: err}
	}
	out.Path = final
	out.Bytes = n
	return out, nil
}

// resolveFilename returns a bare file name; any directory part is stripped.
func resolveFilename(explicit, disposition, endpoint string) string {
	candidates := []string{explicit}
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			candidates = append(candidates, params["filename"])
		}
	}
	if i := strings.IndexAny(endpoint, "?#"); i >= 0 {
		endpoint = endpoint[:i]
	}
	candidates = append(candidates, path.Base(strings.TrimRight(endpoint, "/")))

	for _, c := range candidates {
		if name, err := safeName(c); err == nil {
			return name
		}
	}
	return defaultDownloadName
}

func safeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", errors.New("unusable file name")
	}
	return name, nil
}
