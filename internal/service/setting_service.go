package service

import (
	"context"
	"encoding/json"
	"strings"

	"smartmart/internal/entity"
)

type SettingService struct {
	settingRepo SettingRepository
}

func NewSettingService(settingRepo SettingRepository) *SettingService {
	return &SettingService{settingRepo: settingRepo}
}

func (s *SettingService) All(ctx context.Context) ([]entity.Setting, error) {
	return s.settingRepo.GetSettings(ctx)
}

func (s *SettingService) Set(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return invalid("key", "is required")
	}
	return s.settingRepo.UpsertSettings(ctx, map[string]string{key: value})
}

// Export renders every setting as one JSON object.
func (s *SettingService) Export(ctx context.Context) ([]byte, error) {
	settings, err := s.settingRepo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(settings))
	for _, setting := range settings {
		values[setting.Key] = setting.Value
	}
	return json.MarshalIndent(values, "", "  ")
}

// Import upserts every key of a JSON object produced by Export.
func (s *SettingService) Import(ctx context.Context, data []byte) (int, error) {
	var values map[string]string
	if err := json.Unmarshal(data, &values); err != nil {
		return 0, invalid("settings", "must be a JSON object of string values")
	}
	for key := range values {
		if strings.TrimSpace(key) == "" {
			return 0, invalid("settings", "keys must not be empty")
		}
	}
	if len(values) == 0 {
		return 0, nil
	}
	if err := s.settingRepo.UpsertSettings(ctx, values); err != nil {
		return 0, err
	}
	return len(values), nil
}
