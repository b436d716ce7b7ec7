package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"TravelPlanner/sdk/go/travelplanner"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/search", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(travelplanner.SearchResults{
			Flights: []travelplanner.Flight{
				{Airline: "DemoAir", FlightNumber: "DA 100", From: "NYC", To: "LON", Price: 512.34},
			},
			Hotels: []travelplanner.Hotel{
				{ID: "HM-1", Name: "Mock Grand London", Location: "London", PricePerNight: 189},
			},
		})
	})
	mux.HandleFunc("/api/v1/searches", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(travelplanner.SearchJob{
			ID:     "job-demo",
			Query:  "flights to London",
			Status: "pending",
		})
	})
	mux.HandleFunc("/api/v1/searches/job-demo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(travelplanner.SearchJob{
			ID:     "job-demo",
			Query:  "flights to London",
			Status: "succeeded",
			Result: &travelplanner.SearchResults{
				Flights: []travelplanner.Flight{
					{Airline: "SampleJet", FlightNumber: "SJ 202", From: "NYC", To: "LON", Price: 548.90},
				},
			},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := travelplanner.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results, err := client.Search(ctx, travelplanner.SearchRequest{Query: "flights to London", Mode: "mock"})
	if err != nil {
		panic(err)
	}
	fmt.Printf("sync search: %d flights, %d hotels\n", len(results.Flights), len(results.Hotels))

	submitted, err := client.SubmitSearch(ctx, travelplanner.SearchRequest{Query: "flights to London"})
	if err != nil {
		panic(err)
	}
	fmt.Printf("submitted job %s (status=%s)\n", submitted.ID, submitted.Status)

	done, err := client.WaitForSearch(ctx, submitted.ID, 50*time.Millisecond)
	if err != nil {
		panic(err)
	}
	fmt.Printf("job %s finished with status %s\n", done.ID, done.Status)
}
