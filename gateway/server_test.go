package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	onvif "github.com/SridarDhandapani/onvif-simulator"
	"github.com/SridarDhandapani/onvif-simulator/event"
	"github.com/SridarDhandapani/onvif-simulator/imaging"
	"github.com/SridarDhandapani/onvif-simulator/ptz"
	"github.com/SridarDhandapani/onvif-simulator/soap"
)

type testDevice struct {
	server *Server
	http   *httptest.Server
	client *soap.Client
	ptz    *ptz.Engine
	events *event.Engine
}

func newTestDevice(t *testing.T) *testDevice {
	t.Helper()
	id, err := onvif.NewDeviceIdentity(onvif.IdentityOptions{
		Host: "127.0.0.1",
		Port: 8080,
		Info: onvif.DeviceInfo{
			Manufacturer:    "Simulated",
			Model:           "PTZ-Sim",
			FirmwareVersion: "1.0.0",
			HardwareId:      "sim-hw",
		},
		Name: "Test Camera",
		PTZ:  true,
	})
	require.NoError(t, err)

	profile := onvif.MediaProfile{
		Token:            onvif.DefaultProfileToken,
		Name:             onvif.DefaultProfileName,
		VideoSourceToken: onvif.DefaultVideoSourceToken,
		VideoEncoder: onvif.VideoEncoderConfig{
			Token:          onvif.DefaultVideoEncoderToken,
			Name:           "H265",
			Encoding:       "H265",
			Resolution:     onvif.Resolution1920x1080,
			Quality:        5,
			FrameRateLimit: 30,
			BitrateLimit:   4096,
		},
		PTZConfigToken:    onvif.DefaultPTZConfigToken,
		PTZNodeToken:      onvif.DefaultPTZNodeToken,
		StreamURI:         "rtsp://127.0.0.1:8554/stream",
		SessionTimeout:    time.Minute,
		VideoSourceBounds: onvif.Resolution1920x1080,
	}

	d := &testDevice{
		ptz:    ptz.NewEngine(ptz.Options{Limits: ptz.DefaultLimits(), Logger: zerolog.Nop()}),
		events: event.NewEngine(event.DefaultConfig(), zerolog.Nop(), nil),
		client: soap.NewClient("", "", 5*time.Second),
	}
	d.server, err = NewServer(Options{
		Identity: id,
		Profiles: []onvif.MediaProfile{profile},
		PTZ:      d.ptz,
		Events:   d.events,
		Imaging:  imaging.NewStore(imaging.DefaultSettings(), imaging.DefaultRanges(), zerolog.Nop()),
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	d.http = httptest.NewServer(d.server.Handler())
	t.Cleanup(d.http.Close)
	return d
}

func (d *testDevice) call(t *testing.T, svc onvif.Service, body string) (*etree.Element, error) {
	t.Helper()
	return d.client.Call(context.Background(), d.http.URL+svc.Path(), "", body)
}

func (d *testDevice) mustCall(t *testing.T, svc onvif.Service, body string) *etree.Element {
	t.Helper()
	resp, err := d.call(t, svc, body)
	require.NoError(t, err)
	return resp
}

func findText(t *testing.T, el *etree.Element, path string) string {
	t.Helper()
	found := el.FindElement(path)
	require.NotNil(t, found, "no %s in %s", path, el.Tag)
	return strings.TrimSpace(found.Text())
}

func requireFault(t *testing.T, err error, subcode string) *soap.Fault {
	t.Helper()
	var f *soap.Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, soap.CodeSender, f.Code)
	assert.Equal(t, subcode, f.Subcode)
	return f
}

func TestNewServerValidation(t *testing.T) {
	_, err := NewServer(Options{})
	assert.Error(t, err)
}

func TestMalformedThenValidRequest(t *testing.T) {
	d := newTestDevice(t)

	resp, err := http.Post(d.http.URL+onvif.ServiceDevice.Path(), soap.ContentType, strings.NewReader("<<< not xml"))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/soap+xml")
	assert.Contains(t, string(body), soap.SubcodeWellFormed)

	info := d.mustCall(t, onvif.ServiceDevice, `<tds:GetDeviceInformation/>`)
	assert.Equal(t, "GetDeviceInformationResponse", info.Tag)
	assert.Equal(t, "Simulated", findText(t, info, "Manufacturer"))
	assert.Equal(t, "PTZ-Sim", findText(t, info, "Model"))
}

func TestUnsupportedAction(t *testing.T) {
	d := newTestDevice(t)

	_, err := d.call(t, onvif.ServiceDevice, `<tds:SystemReboot/>`)
	requireFault(t, err, soap.SubcodeActionNotSupported)

	// a known operation name in the wrong namespace is still unsupported
	_, err = d.call(t, onvif.ServiceDevice, `<trt:GetDeviceInformation/>`)
	requireFault(t, err, soap.SubcodeActionNotSupported)
}

func TestUnqualifiedOperationUsesServicePath(t *testing.T) {
	d := newTestDevice(t)
	resp := d.mustCall(t, onvif.ServiceDevice, `<GetHostname/>`)
	assert.Equal(t, "Test-Camera", findText(t, resp, "HostnameInformation/Name"))
}

func TestDeviceService(t *testing.T) {
	d := newTestDevice(t)

	caps := d.mustCall(t, onvif.ServiceDevice, `<tds:GetCapabilities><tds:Category>PTZ</tds:Category></tds:GetCapabilities>`)
	assert.Equal(t, "http://127.0.0.1:8080/onvif/ptz_service", findText(t, caps, "Capabilities/PTZ/XAddr"))
	assert.Nil(t, caps.FindElement("Capabilities/Media"))

	caps = d.mustCall(t, onvif.ServiceDevice, `<tds:GetCapabilities/>`)
	assert.Equal(t, "http://127.0.0.1:8080/onvif/events_service", findText(t, caps, "Capabilities/Events/XAddr"))
	assert.Equal(t, "true", findText(t, caps, "Capabilities/Events/WSPullPointSupport"))

	_, err := d.call(t, onvif.ServiceDevice, `<tds:GetCapabilities><tds:Category>Bogus</tds:Category></tds:GetCapabilities>`)
	requireFault(t, err, soap.SubcodeInvalidArgVal)

	services := d.mustCall(t, onvif.ServiceDevice, `<tds:GetServices><tds:IncludeCapability>false</tds:IncludeCapability></tds:GetServices>`)
	assert.Len(t, services.SelectElements("Service"), len(onvif.Services))

	scopes := d.mustCall(t, onvif.ServiceDevice, `<tds:GetScopes/>`)
	var items []string
	for _, el := range scopes.FindElements("Scopes/ScopeItem") {
		items = append(items, el.Text())
	}
	assert.Contains(t, items, "onvif://www.onvif.org/Profile/T")
	assert.Contains(t, items, "onvif://www.onvif.org/type/ptz")

	dt := d.mustCall(t, onvif.ServiceDevice, `<tds:GetSystemDateAndTime/>`)
	year, err := strconv.Atoi(findText(t, dt, "SystemDateAndTime/UTCDateTime/Date/Year"))
	require.NoError(t, err)
	assert.Equal(t, time.Now().UTC().Year(), year)
}

func TestMediaService(t *testing.T) {
	d := newTestDevice(t)

	profiles := d.mustCall(t, onvif.ServiceMedia, `<trt:GetProfiles/>`)
	p := profiles.FindElement("Profiles")
	require.NotNil(t, p)
	assert.Equal(t, onvif.DefaultProfileToken, p.SelectAttrValue("token", ""))
	assert.Equal(t, "H265", findText(t, p, "VideoEncoderConfiguration/Encoding"))
	assert.Equal(t, onvif.DefaultPTZConfigToken, p.FindElement("PTZConfiguration").SelectAttrValue("token", ""))

	uri := d.mustCall(t, onvif.ServiceMedia, `<trt:GetStreamUri><trt:ProfileToken>Profile_T_1</trt:ProfileToken></trt:GetStreamUri>`)
	assert.Equal(t, "rtsp://127.0.0.1:8554/stream", findText(t, uri, "MediaUri/Uri"))

	_, err := d.call(t, onvif.ServiceMedia, `<trt:GetProfile><trt:ProfileToken>nope</trt:ProfileToken></trt:GetProfile>`)
	requireFault(t, err, soap.SubcodeInvalidArgVal)

	sources := d.mustCall(t, onvif.ServiceMedia, `<trt:GetVideoSources/>`)
	assert.Len(t, sources.SelectElements("VideoSources"), 1)
}

func TestPTZAbsoluteMoveThenStatus(t *testing.T) {
	d := newTestDevice(t)

	d.mustCall(t, onvif.ServicePTZ, `<tptz:AbsoluteMove>
		<tptz:ProfileToken>Profile_T_1</tptz:ProfileToken>
		<tptz:Position>
			<tt:PanTilt x="0.5" y="-0.25"/>
			<tt:Zoom x="2"/>
		</tptz:Position>
	</tptz:AbsoluteMove>`)

	status := d.mustCall(t, onvif.ServicePTZ, `<tptz:GetStatus><tptz:ProfileToken>Profile_T_1</tptz:ProfileToken></tptz:GetStatus>`)
	pt := status.FindElement("PTZStatus/Position/PanTilt")
	require.NotNil(t, pt)
	assert.Equal(t, "0.5", pt.SelectAttrValue("x", ""))
	assert.Equal(t, "-0.25", pt.SelectAttrValue("y", ""))
	assert.Equal(t, "1", status.FindElement("PTZStatus/Position/Zoom").SelectAttrValue("x", ""))
	assert.Equal(t, "IDLE", findText(t, status, "PTZStatus/MoveStatus/PanTilt"))

	// omitted axes keep their value
	d.mustCall(t, onvif.ServicePTZ, `<tptz:AbsoluteMove><tptz:Position><tt:Zoom x="0.25"/></tptz:Position></tptz:AbsoluteMove>`)
	assert.Equal(t, ptz.Vector{Pan: 0.5, Tilt: -0.25, Zoom: 0.25}, d.ptz.Status().Position)
}

func TestPTZInvalidArguments(t *testing.T) {
	d := newTestDevice(t)

	_, err := d.call(t, onvif.ServicePTZ, `<tptz:AbsoluteMove><tptz:Position><tt:PanTilt x="left" y="0"/></tptz:Position></tptz:AbsoluteMove>`)
	requireFault(t, err, soap.SubcodeInvalidArgVal)

	_, err = d.call(t, onvif.ServicePTZ, `<tptz:GetStatus><tptz:ProfileToken>missing</tptz:ProfileToken></tptz:GetStatus>`)
	requireFault(t, err, soap.SubcodeInvalidArgVal)

	assert.Equal(t, ptz.Vector{}, d.ptz.Status().Position)
}

func TestNonFiniteNumbersRejected(t *testing.T) {
	d := newTestDevice(t)
	d.mustCall(t, onvif.ServicePTZ, `<tptz:AbsoluteMove><tptz:Position><tt:PanTilt x="0.5" y="0.25"/></tptz:Position></tptz:AbsoluteMove>`)

	for _, body := range []string{
		`<tptz:AbsoluteMove><tptz:Position><tt:PanTilt x="NaN" y="0"/></tptz:Position></tptz:AbsoluteMove>`,
		`<tptz:RelativeMove><tptz:Translation><tt:Zoom x="+Inf"/></tptz:Translation></tptz:RelativeMove>`,
		`<tptz:ContinuousMove><tptz:Velocity><tt:PanTilt x="nan" y="0.5"/></tptz:Velocity></tptz:ContinuousMove>`,
	} {
		_, err := d.call(t, onvif.ServicePTZ, body)
		requireFault(t, err, soap.SubcodeInvalidArgVal)
	}
	st := d.ptz.Status()
	assert.Equal(t, ptz.Vector{Pan: 0.5, Tilt: 0.25}, st.Position)
	assert.Equal(t, ptz.MoveIdle, st.Move)

	_, err := d.call(t, onvif.ServiceImaging, `<timg:SetImagingSettings><timg:ImagingSettings><tt:Brightness>NaN</tt:Brightness></timg:ImagingSettings></timg:SetImagingSettings>`)
	requireFault(t, err, soap.SubcodeInvalidArgVal)
	settings := d.mustCall(t, onvif.ServiceImaging, `<timg:GetImagingSettings/>`)
	assert.Equal(t, "50", findText(t, settings, "ImagingSettings/Brightness"))
}

func TestPTZContinuousMoveAndStop(t *testing.T) {
	d := newTestDevice(t)

	d.mustCall(t, onvif.ServicePTZ, `<tptz:ContinuousMove>
		<tptz:ProfileToken>Profile_T_1</tptz:ProfileToken>
		<tptz:Velocity><tt:PanTilt x="0.5" y="0"/></tptz:Velocity>
	</tptz:ContinuousMove>`)
	status := d.mustCall(t, onvif.ServicePTZ, `<tptz:GetStatus/>`)
	assert.Equal(t, "MOVING", findText(t, status, "PTZStatus/MoveStatus/PanTilt"))
	assert.Equal(t, "IDLE", findText(t, status, "PTZStatus/MoveStatus/Zoom"))

	d.mustCall(t, onvif.ServicePTZ, `<tptz:Stop><tptz:ProfileToken>Profile_T_1</tptz:ProfileToken></tptz:Stop>`)
	status = d.mustCall(t, onvif.ServicePTZ, `<tptz:GetStatus/>`)
	assert.Equal(t, "IDLE", findText(t, status, "PTZStatus/MoveStatus/PanTilt"))

	d.mustCall(t, onvif.ServicePTZ, `<tptz:GotoHomePosition/>`)
	assert.Equal(t, ptz.Vector{}, d.ptz.Status().Position)

	nodes := d.mustCall(t, onvif.ServicePTZ, `<tptz:GetNodes/>`)
	assert.Equal(t, "true", findText(t, nodes, "PTZNode/HomeSupported"))
	assert.NotNil(t, nodes.FindElement("PTZNode/SupportedPTZSpaces/ContinuousPanTiltVelocitySpace"))
}

func TestImagingService(t *testing.T) {
	d := newTestDevice(t)

	d.mustCall(t, onvif.ServiceImaging, `<timg:SetImagingSettings>
		<timg:VideoSourceToken>VideoSource_1</timg:VideoSourceToken>
		<timg:ImagingSettings>
			<tt:Brightness>150</tt:Brightness>
			<tt:ColorSaturation>20</tt:ColorSaturation>
			<tt:IrCutFilter>ON</tt:IrCutFilter>
		</timg:ImagingSettings>
	</timg:SetImagingSettings>`)

	settings := d.mustCall(t, onvif.ServiceImaging, `<timg:GetImagingSettings><timg:VideoSourceToken>VideoSource_1</timg:VideoSourceToken></timg:GetImagingSettings>`)
	assert.Equal(t, "100", findText(t, settings, "ImagingSettings/Brightness"))
	assert.Equal(t, "20", findText(t, settings, "ImagingSettings/ColorSaturation"))
	assert.Equal(t, "50", findText(t, settings, "ImagingSettings/Contrast"))
	assert.Equal(t, "ON", findText(t, settings, "ImagingSettings/IrCutFilter"))

	_, err := d.call(t, onvif.ServiceImaging, `<timg:SetImagingSettings><timg:ImagingSettings><tt:IrCutFilter>SOMETIMES</tt:IrCutFilter><tt:Brightness>1</tt:Brightness></timg:ImagingSettings></timg:SetImagingSettings>`)
	requireFault(t, err, soap.SubcodeInvalidArgVal)
	_, err = d.call(t, onvif.ServiceImaging, `<timg:SetImagingSettings><timg:ImagingSettings><tt:Contrast>high</tt:Contrast></timg:ImagingSettings></timg:SetImagingSettings>`)
	requireFault(t, err, soap.SubcodeInvalidArgVal)

	settings = d.mustCall(t, onvif.ServiceImaging, `<timg:GetImagingSettings/>`)
	assert.Equal(t, "100", findText(t, settings, "ImagingSettings/Brightness"))
	assert.Equal(t, "50", findText(t, settings, "ImagingSettings/Contrast"))

	opts := d.mustCall(t, onvif.ServiceImaging, `<timg:GetOptions/>`)
	assert.Equal(t, "100", findText(t, opts, "ImagingOptions/Brightness/Max"))
	assert.Len(t, opts.FindElements("ImagingOptions/IrCutFilterModes"), 3)
}

func TestEventsPullPoint(t *testing.T) {
	d := newTestDevice(t)

	created := d.mustCall(t, onvif.ServiceEvents, `<tev:CreatePullPointSubscription>
		<tev:InitialTerminationTime>PT60S</tev:InitialTerminationTime>
	</tev:CreatePullPointSubscription>`)
	addr := findText(t, created, "SubscriptionReference/Address")
	token := tokenFromAddress(addr)
	require.NotEmpty(t, token)
	assert.True(t, strings.HasPrefix(addr, "http://127.0.0.1:8080"+onvif.PullPointPath+"/"))
	assert.NotEmpty(t, findText(t, created, "TerminationTime"))

	pullPoint := d.http.URL + onvif.PullPointPath + "/" + token
	pull := func() (*etree.Element, error) {
		return d.client.Call(context.Background(), pullPoint, "",
			`<tev:PullMessages><tev:Timeout>PT0S</tev:Timeout><tev:MessageLimit>10</tev:MessageLimit></tev:PullMessages>`)
	}

	d.events.Emit()
	d.events.Emit()

	resp, err := pull()
	require.NoError(t, err)
	msgs := resp.SelectElements("NotificationMessage")
	require.Len(t, msgs, 2)
	assert.Equal(t, event.TopicMotionAlarm, findText(t, msgs[0], "Topic"))
	assert.Equal(t, dialectConcreteSet, msgs[0].SelectElement("Topic").SelectAttrValue("Dialect", ""))
	state := func(msg *etree.Element) string {
		return msg.FindElement("Message/Message/Data/SimpleItem").SelectAttrValue("Value", "")
	}
	assert.Equal(t, "true", state(msgs[0]))
	assert.Equal(t, "false", state(msgs[1]))

	resp, err = pull()
	require.NoError(t, err)
	assert.Empty(t, resp.SelectElements("NotificationMessage"))

	_, err = d.client.Call(context.Background(), pullPoint, "", `<wsnt:Renew><wsnt:TerminationTime>PT120S</wsnt:TerminationTime></wsnt:Renew>`)
	require.NoError(t, err)

	_, err = d.client.Call(context.Background(), pullPoint, "", `<wsnt:Unsubscribe/>`)
	require.NoError(t, err)

	_, err = pull()
	requireFault(t, err, soap.SubcodeInvalidArgVal)
}

func TestLongLifetimeClampedToMaximum(t *testing.T) {
	d := newTestDevice(t)

	for _, requested := range []string{"P300Y", "PT9999999999999S"} {
		created := d.mustCall(t, onvif.ServiceEvents, `<tev:CreatePullPointSubscription>
			<tev:InitialTerminationTime>`+requested+`</tev:InitialTerminationTime>
		</tev:CreatePullPointSubscription>`)
		current, err := time.Parse(soap.TimeLayout, findText(t, created, "CurrentTime"))
		require.NoError(t, err)
		termination, err := time.Parse(soap.TimeLayout, findText(t, created, "TerminationTime"))
		require.NoError(t, err)
		assert.Equal(t, event.DefaultConfig().MaxTermination, termination.Sub(current), requested)
	}
}

func TestHugePullTimeoutWaits(t *testing.T) {
	d := newTestDevice(t)

	created := d.mustCall(t, onvif.ServiceEvents, `<tev:CreatePullPointSubscription/>`)
	pullPoint := d.http.URL + onvif.PullPointPath + "/" + tokenFromAddress(findText(t, created, "SubscriptionReference/Address"))

	go func() {
		time.Sleep(100 * time.Millisecond)
		d.events.Emit()
	}()
	resp, err := d.client.Call(context.Background(), pullPoint, "",
		`<tev:PullMessages><tev:Timeout>P300Y</tev:Timeout><tev:MessageLimit>1</tev:MessageLimit></tev:PullMessages>`)
	require.NoError(t, err)
	assert.Len(t, resp.SelectElements("NotificationMessage"), 1)
}

func TestOversizedRequestRejected(t *testing.T) {
	d := newTestDevice(t)

	body := `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"><s:Body><tds:GetHostname xmlns:tds="` +
		onvif.NamespaceDevice + `"/><!--` + strings.Repeat("x", MaxRequestBytes) + `--></s:Body></s:Envelope>`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, onvif.ServiceDevice.Path(), strings.NewReader(body))
	req.Header.Set("Content-Type", soap.ContentType)
	d.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), soap.SubcodeWellFormed)
}

func TestPullWithoutSubscription(t *testing.T) {
	d := newTestDevice(t)

	_, err := d.call(t, onvif.ServiceEvents, `<tev:PullMessages><tev:Timeout>PT0S</tev:Timeout><tev:MessageLimit>1</tev:MessageLimit></tev:PullMessages>`)
	requireFault(t, err, soap.SubcodeInvalidArgVal)

	_, err = d.client.Call(context.Background(), d.http.URL+onvif.PullPointPath+"/unknown", "",
		`<tev:PullMessages><tev:Timeout>PT0S</tev:Timeout><tev:MessageLimit>1</tev:MessageLimit></tev:PullMessages>`)
	requireFault(t, err, soap.SubcodeInvalidArgVal)
}

func TestEventProperties(t *testing.T) {
	d := newTestDevice(t)
	resp := d.mustCall(t, onvif.ServiceEvents, `<tev:GetEventProperties/>`)
	assert.NotNil(t, resp.FindElement("TopicSet/VideoSource/MotionAlarm"))
	assert.Equal(t, dialectConcreteSet, findText(t, resp, "TopicExpressionDialect"))
}

func TestRecoveryReturnsReceiverFault(t *testing.T) {
	d := newTestDevice(t)
	d.server.routes[route{onvif.NamespaceDevice, "GetHostname"}] = func(*call) (*etree.Element, error) {
		panic("boom")
	}

	_, err := d.call(t, onvif.ServiceDevice, `<tds:GetHostname/>`)
	var f *soap.Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, soap.CodeReceiver, f.Code)

	// the server keeps serving
	d.mustCall(t, onvif.ServiceDevice, `<tds:GetDeviceInformation/>`)
}

func TestTokenFromAddress(t *testing.T) {
	assert.Equal(t, "abc", tokenFromAddress("http://10.0.0.2:8080/onvif/events/pullpoint/abc"))
	assert.Equal(t, "abc", tokenFromAddress("http://10.0.0.2:8080/onvif/events/pullpoint/abc?x=1"))
	assert.Equal(t, "", tokenFromAddress("http://10.0.0.2:8080/onvif/events_service"))
	assert.Equal(t, "", tokenFromAddress(""))
}
