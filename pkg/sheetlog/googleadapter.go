package sheetlog

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"
)

// GoogleSheetsAdapter implements the values API over the real Sheets v4
// service.
type GoogleSheetsAdapter struct {
	service *sheets.Service
}

// NewGoogleSheetsAdapter builds the underlying Sheets service. Credentials
// come through the standard client options.
func NewGoogleSheetsAdapter(ctx context.Context, opts ...option.ClientOption) (*GoogleSheetsAdapter, error) {
	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &GoogleSheetsAdapter{service: service}, nil
}

func (a *GoogleSheetsAdapter) Get(ctx context.Context, spreadsheetID, readRange string) ([][]interface{}, error) {
	resp, err := a.service.Spreadsheets.Values.Get(spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (a *GoogleSheetsAdapter) Append(ctx context.Context, spreadsheetID, writeRange string, values [][]interface{}) error {
	_, err := a.service.Spreadsheets.Values.
		Append(spreadsheetID, writeRange, &sheets.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

func (a *GoogleSheetsAdapter) Update(ctx context.Context, spreadsheetID, writeRange string, values [][]interface{}) error {
	_, err := a.service.Spreadsheets.Values.
		Update(spreadsheetID, writeRange, &sheets.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	return err
}
