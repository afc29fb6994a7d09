package server

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

type (
	// RequestPipeline sends one request to an external service in three
	// stages: prepare the body, execute, post-process the answer.
	RequestPipeline struct {
		client         *resty.Client
		requestPrepare func(r *resty.Request, params any) error
		postProcess    func(responseBody []byte) (any, error)
	}

	// multipartParams is the input of prepareMultipartFile.
	multipartParams struct {
		fields    map[string]string
		fileField string
		fileName  string
		data      []byte
	}
)

func newRequestPipeline(timeout time.Duration,
	prepare func(r *resty.Request, params any) error,
	post func(responseBody []byte) (any, error)) RequestPipeline {
	client := resty.New()
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return RequestPipeline{client: client, requestPrepare: prepare, postProcess: post}
}

func (p RequestPipeline) Execute(ctx context.Context, method, url string, params any) (any, error) {
	r := p.client.R().SetContext(ctx)
	if p.requestPrepare != nil {
		if err := p.requestPrepare(r, params); err != nil {
			return nil, errors.Wrap(err, "error during request prepare")
		}
	}
	res, err := r.Execute(method, url)
	if err != nil {
		return nil, errors.Wrap(err, "error during request sending")
	}
	if res.IsError() {
		return nil, errors.Errorf("%s %s answered %d: %s", method, url, res.StatusCode(), res.String())
	}
	if p.postProcess == nil {
		return res.Body(), nil
	}
	out, err := p.postProcess(res.Body())
	return out, errors.Wrap(err, "error during body response")
}

func prepareJSONBody(r *resty.Request, params any) error {
	r.SetHeader("Content-Type", "application/json").SetBody(params)
	return nil
}

func prepareMultipartFile(r *resty.Request, params any) error {
	mp, ok := params.(multipartParams)
	if !ok {
		return errors.Errorf("unexpected multipart params %T", params)
	}
	if len(mp.data) == 0 {
		return errors.New("no file data")
	}
	r.SetFormData(mp.fields).
		SetFileReader(mp.fileField, mp.fileName, bytes.NewReader(mp.data))
	return nil
}

func decodeInto[T any](responseBody []byte) (any, error) {
	var out T
	if err := json.Unmarshal(responseBody, &out); err != nil {
		return nil, err
	}
	return out, nil
}
