package listener

import "testing"

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name    string
		extra   string
		want    LinkCreated
		wantErr bool
	}{
		{"trigger payload", `{"link_id": 42, "user_id": 7}`, LinkCreated{LinkID: 42, UserID: 7}, false},
		{"extra fields ignored", `{"link_id": 1, "user_id": 2, "item_id": "x"}`, LinkCreated{LinkID: 1, UserID: 2}, false},
		{"not json", `42`, LinkCreated{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePayload(tt.extra)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parsePayload() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parsePayload() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
