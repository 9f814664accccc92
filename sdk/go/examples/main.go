package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"AgentPay/sdk/go/agentpay"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/tasks", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			_ = json.NewEncoder(w).Encode(agentpay.TaskSummary{
				TaskID: "task-demo",
				Status: "pending",
			})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/tasks/task-demo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(agentpay.TaskDetail{
			TaskID: "task-demo",
			Theme:  "acme",
			Budget: 50,
			Status: "completed",
			Report: "## acme\n\nACME Corp: A company",
		})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := agentpay.NewClient(server.URL, nil)
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	summary, err := client.SubmitTask(ctx, agentpay.TaskSubmission{Theme: "acme", Budget: 50})
	if err != nil {
		panic(err)
	}
	fmt.Printf("submitted %s (%s)\n", summary.TaskID, summary.Status)

	detail, err := client.WaitForTask(ctx, summary.TaskID, 100*time.Millisecond)
	if err != nil {
		panic(err)
	}
	fmt.Printf("finished %s: %s\n", detail.TaskID, detail.Status)
	fmt.Println(detail.Report)
}
