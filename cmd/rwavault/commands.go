package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/rwavault/internal/config"
	"github.com/dharsanguruparan/rwavault/internal/contenthash"
	"github.com/dharsanguruparan/rwavault/internal/ledger"
	pdfutil "github.com/dharsanguruparan/rwavault/internal/pdf"
)

func newHashCmd() *cobra.Command {
	var scheme string
	var showText bool
	cmd := &cobra.Command{
		Use:   "hash <file>",
		Short: "Print the content hash and metadata URI a document would be minted with",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			hash := contenthash.Sum(data)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "contentHash  %s\n", hash)
			fmt.Fprintf(out, "metadataURI  %s\n", contenthash.MetadataURI(strings.TrimSuffix(scheme, "://"), hash))
			if http.DetectContentType(data) != pdfutil.ContentType {
				return nil
			}
			pages, err := pdfutil.PageCount(data)
			if err != nil {
				return fmt.Errorf("%s would be rejected: %w", args[0], err)
			}
			fmt.Fprintf(out, "pages        %d\n", pages)
			if showText {
				text, err := pdfutil.ExtractText(data)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, text)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&scheme, "scheme", "ipfs", "Metadata URI scheme")
	cmd.Flags().BoolVar(&showText, "text", false, "Print the extracted text of PDF documents")
	return cmd
}

func newTokenizeCmd() *cobra.Command {
	var owner string
	var apiURL string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "tokenize <file>",
		Short: "Submit a document to a running api and print the minted token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, contentType, err := uploadBody(args[0], owner)
			if err != nil {
				return err
			}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, strings.TrimSuffix(apiURL, "/")+"/tokenize", body)
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", contentType)
			resp, err := (&http.Client{Timeout: timeout}).Do(req)
			if err != nil {
				return fmt.Errorf("post tokenize: %w", err)
			}
			defer resp.Body.Close()
			payload, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("tokenize failed (%s): %s", resp.Status, strings.TrimSpace(string(payload)))
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, payload, "", "  "); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner address recorded for the token")
	cmd.Flags().StringVar(&apiURL, "api", "http://localhost:3000", "Base URL of the rwavault api")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Overall request timeout including the mint wait")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func uploadBody(path, owner string) (*bytes.Buffer, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if err := mw.WriteField("owner", owner); err != nil {
		return nil, "", err
	}
	part, err := mw.CreateFormFile("asset", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return body, mw.FormDataContentType(), nil
}

func newAssetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assets <hash>",
		Short: "Print the ledger records for a content hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash := strings.ToLower(strings.TrimSpace(args[0]))
			if !contenthash.Valid(hash) {
				return fmt.Errorf("%q is not a sha-256 hex digest", args[0])
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			l, closeLedger, err := ledger.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeLedger()
			records, err := l.FindByHash(cmd.Context(), hash)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return errors.New("no records for " + hash)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		},
	}
}
