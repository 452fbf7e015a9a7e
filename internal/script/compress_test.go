package script

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompress(t *testing.T) {
	src := "-- header comment\n" +
		"local x = 1   -- trailing\n" +
		"\n" +
		"   \t\n" +
		"print(\"a -- not a comment\")\t \n" +
		"  if x then  \n" +
		"    MB.W(46180, 0, 1)\n" +
		"  end\n"

	want := "local x = 1\n" +
		"print(\"a -- not a comment\")\n" +
		"  if x then\n" +
		"    MB.W(46180, 0, 1)\n" +
		"  end\n"

	require.Equal(t, want, string(Compress([]byte(src))))
}

func TestCompress_CRLFAndEscapes(t *testing.T) {
	src := "s = 'it\\'s -- here' -- gone\r\nt = 2\r\n"
	require.Equal(t, "s = 'it\\'s -- here'\nt = 2\n", string(Compress([]byte(src))))
}

func TestCompress_LongBrackets(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "block comment across lines",
			src:  "--[[\nDrive control for the elevation axis\nauthor: x\n]]\nx = 1\n",
			want: "x = 1\n",
		},
		{
			name: "leveled block comment",
			src:  "--[==[\n]] still comment\n]==] y = 2\n",
			want: "  y = 2\n",
		},
		{
			name: "inline block comment",
			src:  "a = 1 --[[ note ]] + 2\n",
			want: "a = 1   + 2\n",
		},
		{
			name: "comment marker in long string",
			src:  "local s = [[a -- b]]\nx = 1\n",
			want: "local s = [[a -- b]]\nx = 1\n",
		},
		{
			name: "multi-line long string kept verbatim",
			src:  "s = [==[\n  keep  \n\n-- text]==] -- gone\n",
			want: "s = [==[\n  keep  \n\n-- text]==]\n",
		},
		{
			name: "index brackets are not long strings",
			src:  "v = t[k[1]] -- lookup\n",
			want: "v = t[k[1]]\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, string(Compress([]byte(tt.src))))
		})
	}
}

func TestTerminate(t *testing.T) {
	require.Equal(t, []byte("abc\x00"), terminate([]byte("abc")))
	require.Equal(t, []byte("abc\x00"), terminate([]byte("abc\x00\x00")))
	require.Equal(t, []byte{0}, terminate(nil))
}
