package ingestion

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const googleDocMime = "application/vnd.google-apps.document"

// DriveFile is a file listed from a Drive folder.
type DriveFile struct {
	ID       string
	Name     string
	MimeType string
}

// GoogleDrive reads files from Google Drive with a service account.
type GoogleDrive struct {
	svc *drive.Service
}

// NewGoogleDrive authenticates with the service account JSON at credentialsFile.
func NewGoogleDrive(ctx context.Context, credentialsFile string) (*GoogleDrive, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading google credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, drive.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parsing google credentials: %w", err)
	}
	client := oauth2.NewClient(ctx, creds.TokenSource)
	svc, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("creating drive service: %w", err)
	}
	return &GoogleDrive{svc: svc}, nil
}

// ListFiles returns the supported files directly inside folderID. Google Docs
// are listed too and exported as plain text on download.
func (g *GoogleDrive) ListFiles(ctx context.Context, folderID string) ([]DriveFile, error) {
	q := fmt.Sprintf("'%s' in parents and trashed = false", strings.ReplaceAll(folderID, "'", `\'`))
	var out []DriveFile
	pageToken := ""
	for {
		call := g.svc.Files.List().Q(q).
			Fields("nextPageToken, files(id, name, mimeType)").
			PageSize(100).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		res, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("listing drive folder %s: %w", folderID, err)
		}
		for _, f := range res.Files {
			if f.MimeType == googleDocMime || Supported(f.Name) {
				out = append(out, DriveFile{ID: f.Id, Name: f.Name, MimeType: f.MimeType})
			}
		}
		if res.NextPageToken == "" {
			return out, nil
		}
		pageToken = res.NextPageToken
	}
}

// Download writes f into dir and returns the local path.
func (g *GoogleDrive) Download(ctx context.Context, f DriveFile, dir string) (string, error) {
	name := filepath.Base(f.Name)
	var body io.ReadCloser
	if f.MimeType == googleDocMime {
		resp, err := g.svc.Files.Export(f.ID, "text/plain").Context(ctx).Download()
		if err != nil {
			return "", fmt.Errorf("exporting %s: %w", f.Name, err)
		}
		body = resp.Body
		name += ".txt"
	} else {
		resp, err := g.svc.Files.Get(f.ID).Context(ctx).Download()
		if err != nil {
			return "", fmt.Errorf("downloading %s: %w", f.Name, err)
		}
		body = resp.Body
	}
	defer body.Close()

	path := filepath.Join(dir, f.ID+"_"+name)
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		return "", err
	}
	return path, out.Close()
}
