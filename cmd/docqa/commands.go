package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"docqa/internal/client"
)

func newClient(c *cli.Context) (*client.Client, error) {
	return client.New(c.String("server"))
}

// requestContext applies --timeout to one-shot requests.
func requestContext(c *cli.Context) (context.Context, context.CancelFunc) {
	if d := c.Duration("timeout"); d > 0 {
		return context.WithTimeout(c.Context, d)
	}
	return context.WithCancel(c.Context)
}

func uploadCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("upload needs at least one FILE")
	}
	cl, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := cl.Upload(ctx, c.Args().Slice())
	if err != nil {
		return err
	}
	out := c.App.Writer
	fmt.Fprintln(out, res.Message)
	for _, d := range res.Documents {
		line := fmt.Sprintf("  %s  %-8s %4d chunks  %s", d.ID, d.Status, d.ChunkCount, d.Filename)
		if d.Error != "" {
			line += "  (" + d.Error + ")"
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "%d chunks indexed\n", res.Chunks)
	return nil
}

func askCommand(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return fmt.Errorf("ask needs a QUESTION")
	}
	cl, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	_, err = answer(ctx, cl, c.App.Writer, question, c.Bool("stream"))
	return err
}

// answer prints the reply and its de-duplicated sources and returns them for the transcript.
func answer(ctx context.Context, cl *client.Client, out io.Writer, question string, stream bool) (turn, error) {
	t := turn{Question: question}
	if stream {
		res, err := cl.AskStream(ctx, question, func(tok string) { fmt.Fprint(out, tok) })
		fmt.Fprintln(out)
		if err != nil {
			return t, err
		}
		t.Answer, t.Sources = res.Response, uniqueBasenames(res.Sources)
	} else {
		ans, err := cl.Ask(ctx, question)
		if err != nil {
			return t, err
		}
		fmt.Fprintln(out, ans.Response)
		t.Answer, t.Sources = ans.Response, uniqueBasenames(ans.Sources)
	}
	if len(t.Sources) > 0 {
		fmt.Fprintln(out, "Sources:")
		for _, s := range t.Sources {
			fmt.Fprintln(out, "  -", s)
		}
	}
	return t, nil
}

func chatCommand(c *cli.Context) error {
	cl, err := newClient(c)
	if err != nil {
		return err
	}
	out := c.App.Writer
	stream := !c.Bool("no-stream")

	var transcript []turn
	sc := bufio.NewScanner(c.App.Reader)
	fmt.Fprint(out, "> ")
	for sc.Scan() {
		q := strings.TrimSpace(sc.Text())
		switch {
		case q == "":
		case q == "exit" || q == "quit":
			return writeHistory(c.String("history"), transcript)
		default:
			t, err := answer(c.Context, cl, out, q, stream)
			if err != nil {
				var apiErr *client.APIError
				if !errors.As(err, &apiErr) {
					_ = writeHistory(c.String("history"), transcript)
					return err
				}
				fmt.Fprintln(c.App.ErrWriter, "error:", apiErr)
			} else {
				transcript = append(transcript, t)
			}
		}
		fmt.Fprint(out, "> ")
	}
	fmt.Fprintln(out)
	if err := sc.Err(); err != nil {
		return err
	}
	return writeHistory(c.String("history"), transcript)
}

func writeHistory(path string, turns []turn) error {
	if path == "" || len(turns) == 0 {
		return nil
	}
	return os.WriteFile(path, []byte(renderTranscript(turns, time.Now())), 0o644)
}

func docsListCommand(c *cli.Context) error {
	cl, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	list, err := cl.ListDocuments(ctx, c.Int("limit"), c.Int("offset"), c.String("status"))
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCHUNKS\tSIZE\tCREATED\tFILENAME")
	for _, d := range list.Items {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n", d.ID, d.Status, d.ChunkCount, d.Size, d.CreatedAt.Format(time.RFC3339), d.Filename)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%d of %d documents\n", len(list.Items), list.Total)
	return nil
}

func docsGetCommand(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("docs get needs an ID")
	}
	cl, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	d, err := cl.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	out := c.App.Writer
	fmt.Fprintf(out, "id:       %s\n", d.ID)
	fmt.Fprintf(out, "filename: %s\n", d.Filename)
	fmt.Fprintf(out, "status:   %s\n", d.Status)
	fmt.Fprintf(out, "chunks:   %d\n", d.ChunkCount)
	fmt.Fprintf(out, "size:     %d\n", d.Size)
	fmt.Fprintf(out, "stored:   %s\n", d.StoragePath)
	fmt.Fprintf(out, "created:  %s\n", d.CreatedAt.Format(time.RFC3339))
	if d.Error != "" {
		fmt.Fprintf(out, "error:    %s\n", d.Error)
	}

	if dest := c.String("download"); dest != "" {
		if st, err := os.Stat(dest); err == nil && st.IsDir() {
			dest = filepath.Join(dest, filepath.Base(d.Filename))
		}
		n, err := downloadTo(ctx, cl, id, dest)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "saved %d bytes to %s\n", n, dest)
	}
	return nil
}

// downloadTo writes the document to dest and removes a partial file on failure.
func downloadTo(ctx context.Context, cl *client.Client, id, dest string) (int64, error) {
	f, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	n, err := cl.DownloadDocument(ctx, id, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dest)
		return 0, err
	}
	return n, nil
}

func docsDeleteCommand(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("docs delete needs an ID")
	}
	cl, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := cl.DeleteDocument(ctx, id); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "deleted", id)
	return nil
}

func healthCommand(c *cli.Context) error {
	cl, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := cl.Health(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "ok")
	return nil
}
