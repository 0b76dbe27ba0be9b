package webmonitor

const indexHTML = `
<!DOCTYPE html>
<html>
<head>
    <title>Frame Sampler Monitor</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: system-ui, sans-serif; background: #10141a; color: #e6e6e6; margin: 0; }
        .app { max-width: 1100px; margin: 0 auto; padding: 20px; }
        .header { display: flex; justify-content: space-between; align-items: center; margin-bottom: 16px; }
        .title { font-size: 22px; font-weight: 600; }
        .badge { padding: 4px 10px; border-radius: 12px; font-size: 12px; background: #3a3f4b; }
        .badge-live { background: #1f7a4d; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(300px, 1fr)); gap: 16px; }
        .panel { background: #1a1f29; border-radius: 8px; padding: 16px; }
        .panel h2 { margin: 0 0 10px; font-size: 16px; }
        .stat { display: flex; justify-content: space-between; padding: 4px 0; border-bottom: 1px solid #262c38; }
        .stat span:last-child { font-variant-numeric: tabular-nums; }
        table { width: 100%; border-collapse: collapse; font-size: 13px; }
        th, td { text-align: left; padding: 4px 6px; border-bottom: 1px solid #262c38; }
        .skip { color: #7a8294; }
        #reason-bars div { height: 14px; background: #3d7bd9; margin: 2px 0; border-radius: 3px; font-size: 11px; padding-left: 4px; white-space: nowrap; }
    </style>
</head>
<body>
    <div class="app">
        <div class="header">
            <div class="title">Frame Sampler Monitor</div>
            <span class="badge" id="status-badge">Waiting for data...</span>
        </div>

        <div class="grid">
            <div class="panel">
                <h2>Current decision</h2>
                <div class="stat"><span>Session</span><span id="session">-</span></div>
                <div class="stat"><span>Frame</span><span id="frame">-</span></div>
                <div class="stat"><span>Processed</span><span id="processed">-</span></div>
                <div class="stat"><span>Reason</span><span id="reason">-</span></div>
                <div class="stat"><span>Interval</span><span id="interval">-</span></div>
                <div class="stat"><span>Motion score</span><span id="motion">-</span></div>
                <div class="stat"><span>Tracks</span><span id="tracks">-</span></div>
                <div class="stat"><span>Decision latency</span><span id="latency">-</span></div>
            </div>

            <div class="panel">
                <h2>Session metrics</h2>
                <div class="stat"><span>Frames processed</span><span id="m-processed">-</span></div>
                <div class="stat"><span>Frames skipped</span><span id="m-skipped">-</span></div>
                <div class="stat"><span>Processing ratio</span><span id="m-ratio">-</span></div>
                <div class="stat"><span>Avg motion</span><span id="m-motion">-</span></div>
                <div class="stat"><span>ID switches</span><span id="m-switches">-</span></div>
                <div class="stat"><span>Lock events</span><span id="m-locks">-</span></div>
                <div class="stat"><span>Efficiency</span><span id="m-eff">-</span></div>
            </div>

            <div class="panel">
                <h2>Reasons (recent)</h2>
                <div id="reason-bars"></div>
            </div>
        </div>

        <div class="panel" style="margin-top:16px;">
            <h2>Recent decisions</h2>
            <table>
                <thead><tr><th>Frame</th><th>Processed</th><th>Reason</th><th>Interval</th><th>Motion</th><th>Detections</th></tr></thead>
                <tbody id="history"></tbody>
            </table>
        </div>
    </div>

    <script type="module">
        const maxRows = 30;
        const rows = [];
        const reasonCounts = new Map();

        const setText = (id, value) => {
            const el = document.getElementById(id);
            if (el) el.textContent = value;
        };

        const fmt = (v, digits = 3) => (typeof v === 'number' ? v.toFixed(digits) : '-');

        function renderReasons() {
            const total = [...reasonCounts.values()].reduce((a, b) => a + b, 0) || 1;
            const root = document.getElementById('reason-bars');
            root.innerHTML = '';
            [...reasonCounts.entries()]
                .sort((a, b) => b[1] - a[1])
                .forEach(([reason, count]) => {
                    const bar = document.createElement('div');
                    bar.style.width = Math.max(8, (count / total) * 100) + '%';
                    bar.textContent = reason + ' (' + count + ')';
                    root.appendChild(bar);
                });
        }

        function renderHistory() {
            const body = document.getElementById('history');
            body.innerHTML = '';
            rows.forEach((d) => {
                const tr = document.createElement('tr');
                if (!d.should_process) tr.className = 'skip';
                [d.frame_idx, d.should_process ? 'yes' : 'no', d.reason, d.current_interval, fmt(d.motion_score), d.detection_count]
                    .forEach((v) => {
                        const td = document.createElement('td');
                        td.textContent = v;
                        tr.appendChild(td);
                    });
                body.appendChild(tr);
            });
        }

        function apply(status) {
            const d = status.decision || {};
            const m = status.metrics || {};

            setText('status-badge', 'Live');
            document.getElementById('status-badge').className = 'badge badge-live';
            setText('session', status.session);
            setText('frame', d.frame_idx);
            setText('processed', d.should_process ? 'yes' : 'no');
            setText('reason', d.reason);
            setText('interval', d.current_interval);
            setText('motion', fmt(d.motion_score));
            setText('tracks', status.tracks);
            setText('latency', status.latency_us + ' us');

            setText('m-processed', m.frames_processed);
            setText('m-skipped', m.frames_skipped);
            setText('m-ratio', fmt(m.processing_ratio));
            setText('m-motion', fmt(m.avg_motion_score));
            setText('m-switches', m.id_switches);
            setText('m-locks', m.lock_events);
            setText('m-eff', fmt(m.efficiency_score));

            rows.unshift(d);
            if (rows.length > maxRows) rows.pop();
            reasonCounts.set(d.reason, (reasonCounts.get(d.reason) || 0) + 1);
            renderHistory();
            renderReasons();
        }

        function connect() {
            const source = new EventSource('/api/sampling/stream');
            source.addEventListener('status', (ev) => {
                try {
                    apply(JSON.parse(ev.data));
                } catch (err) {
                    console.error('bad status event', err);
                }
            });
            source.onerror = () => {
                setText('status-badge', 'Reconnecting...');
                document.getElementById('status-badge').className = 'badge';
            };
        }

        fetch('/api/sampling/status')
            .then((res) => (res.ok ? res.json() : null))
            .then((status) => status && apply(status))
            .catch(() => {});
        connect();
    </script>
</body>
</html>
`
