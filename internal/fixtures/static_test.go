package fixtures

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultReturnsCopies(t *testing.T) {
	provider := Default()
	first := provider.Results()
	first.Flights[0].Airline = "mutated"
	second := provider.Results()
	if second.Flights[0].Airline != "DemoAir" {
		t.Fatalf("修改返回值不应影响内部数据集: %+v", second.Flights[0])
	}
	if len(second.Flights) != 2 || len(second.Hotels) != 2 {
		t.Fatalf("内置数据集条数不符: %+v", second)
	}
}

func TestLoadStaticProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.json")
	payload := `{"flights":[{"airline":"A","flightNumber":"A 1","from":"NYC","to":"PAR","price":300}],"hotels":[]}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("写入测试文件失败: %v", err)
	}

	provider, err := LoadStaticProvider(path)
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	results := provider.Results()
	if len(results.Flights) != 1 || results.Flights[0].ToAirport != "PAR" {
		t.Fatalf("加载结果不符: %+v", results)
	}
	if results.Hotels == nil {
		t.Fatal("hotels 应规范化为空列表")
	}
}

func TestLoadStaticProviderErrors(t *testing.T) {
	if _, err := LoadStaticProvider("  "); err == nil {
		t.Fatal("空路径应返回错误")
	}
	if _, err := LoadStaticProvider(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("文件不存在应返回错误")
	}
}
