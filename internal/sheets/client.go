package sheets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"
)

// table is the slice of the Sheets values API the ledger needs.
type table interface {
	get(ctx context.Context, a1 string) ([][]interface{}, error)
	append(ctx context.Context, a1 string, rows [][]interface{}) error
	update(ctx context.Context, a1 string, rows [][]interface{}) error
}

type Client struct {
	srv           *sheetsv4.Service
	spreadsheetID string
}

// New accepts either a path to the service account JSON or the JSON itself.
func New(ctx context.Context, serviceAccountJSON, spreadsheetID string) (*Client, error) {
	var cred option.ClientOption
	if strings.HasPrefix(strings.TrimSpace(serviceAccountJSON), "{") {
		cred = option.WithCredentialsJSON([]byte(serviceAccountJSON))
	} else {
		if _, err := os.Stat(serviceAccountJSON); err != nil {
			return nil, fmt.Errorf("service account json: %w", err)
		}
		cred = option.WithCredentialsFile(serviceAccountJSON)
	}
	srv, err := sheetsv4.NewService(ctx, cred, option.WithScopes(sheetsv4.SpreadsheetsScope))
	if err != nil {
		return nil, err
	}
	return &Client{srv: srv, spreadsheetID: spreadsheetID}, nil
}

func (c *Client) SpreadsheetID() string { return c.spreadsheetID }

func (c *Client) get(ctx context.Context, a1 string) ([][]interface{}, error) {
	resp, err := c.srv.Spreadsheets.Values.Get(c.spreadsheetID, a1).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (c *Client) append(ctx context.Context, a1 string, rows [][]interface{}) error {
	vr := &sheetsv4.ValueRange{Values: rows}
	_, err := c.srv.Spreadsheets.Values.Append(c.spreadsheetID, a1, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

func (c *Client) update(ctx context.Context, a1 string, rows [][]interface{}) error {
	vr := &sheetsv4.ValueRange{Values: rows}
	_, err := c.srv.Spreadsheets.Values.Update(c.spreadsheetID, a1, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}
