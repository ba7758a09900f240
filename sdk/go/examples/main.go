package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"WaxAgentKit/sdk/go/waxkit"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/tools/wax_get_balance", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"success","message":"Balance for demo","balance":"42.00000000 WAX"}`)
	})
	mux.HandleFunc("/api/v1/jobs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(waxkit.Job{ID: "job-demo", Tool: "wax_buy_ram", Status: "pending"})
	})
	mux.HandleFunc("/api/v1/jobs/job-demo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(waxkit.Job{
			ID:     "job-demo",
			Tool:   "wax_buy_ram",
			Status: "succeeded",
			Result: &waxkit.JobResult{Status: "success", Message: "Bought 1024 bytes of RAM"},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := waxkit.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}
	client.SetAccessToken("demo-token")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	env, err := client.CallTool(ctx, "wax_get_balance", nil)
	if err != nil {
		panic(err)
	}
	var balance string
	_ = env.Field("balance", &balance)
	fmt.Printf("%s: %s\n", env.Message, balance)

	job, err := client.SubmitJob(ctx, waxkit.JobSubmission{Tool: "wax_buy_ram", Input: map[string]any{"buy_ram_bytes": 1024}})
	if err != nil {
		panic(err)
	}
	fmt.Printf("submitted job %s (status=%s)\n", job.ID, job.Status)

	done, err := client.WaitForJob(ctx, job.ID, 100*time.Millisecond)
	if err != nil {
		panic(err)
	}
	fmt.Printf("job %s finished: %s\n", done.ID, done.Result.Message)
}
