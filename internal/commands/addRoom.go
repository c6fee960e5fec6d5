package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"wordflight/internal/api"
	"wordflight/internal/config"
)

// AddRoom creates a room through the admin API of a running server.
func AddRoom(name, description string, cfg *config.Config) error {
	reqBody, err := json.Marshal(api.AddRoomRequest{Name: name, Description: description})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("http://%s/admin/rooms", cfg.AdminAddr)
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to call admin API: %w. Is the server running?", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to add room (Status: %d): %s", resp.StatusCode, string(body))
	}

	var result api.AddRoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("\nRoom Created Successfully!\n")
	fmt.Printf("Name: %s\n", name)
	fmt.Printf("ID:   %s\n\n", result.ID)
	return nil
}
