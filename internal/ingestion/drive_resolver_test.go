package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFolderLink(t *testing.T) {
	cases := []struct {
		name    string
		link    string
		want    string
		wantErr bool
	}{
		{
			name: "标准文件夹链接",
			link: "https://drive.google.com/drive/folders/1AbC_dEf-GhIjKlMnOpQr",
			want: "1AbC_dEf-GhIjKlMnOpQr",
		},
		{
			name: "带用户序号的文件夹链接",
			link: "https://drive.google.com/drive/u/0/folders/1AbC_dEf-GhIjKlMnOpQr",
			want: "1AbC_dEf-GhIjKlMnOpQr",
		},
		{
			name: "带查询参数的文件夹链接",
			link: "https://drive.google.com/drive/folders/1AbC_dEf-GhIjKlMnOpQr?usp=sharing",
			want: "1AbC_dEf-GhIjKlMnOpQr",
		},
		{
			name: "open形式的链接",
			link: "https://drive.google.com/open?id=1AbC_dEf-GhIjKlMnOpQr",
			want: "1AbC_dEf-GhIjKlMnOpQr",
		},
		{
			name: "裸文件夹ID",
			link: "1AbC_dEf-GhIjKlMnOpQr",
			want: "1AbC_dEf-GhIjKlMnOpQr",
		},
		{
			name:    "文件链接而非文件夹",
			link:    "https://drive.google.com/file/d/xyz/view",
			wantErr: true,
		},
		{
			name:    "无关网址",
			link:    "https://example.com/some/path",
			wantErr: true,
		},
		{
			name:    "空链接",
			link:    "",
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseFolderLink(tc.link)
			if tc.wantErr {
				require.Error(t, err, "非法链接应解析失败")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
